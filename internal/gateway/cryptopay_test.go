package gateway

import (
	"errors"
	"testing"
)

func TestParseCreateInvoiceOK(t *testing.T) {
	body := []byte(`{"ok":true,"result":{"invoice_id":12345,"status":"active","pay_url":"https://t.me/CryptoBot?start=IVxyz"}}`)
	inv, err := parseCreateInvoice(body)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if inv.InvoiceID != "12345" {
		t.Fatalf("invoice_id = %s", inv.InvoiceID)
	}
	if inv.PayURL != "https://t.me/CryptoBot?start=IVxyz" {
		t.Fatalf("pay_url = %s", inv.PayURL)
	}
	if inv.Status != InvoiceStatusPending {
		t.Fatalf("unknown gateway status should normalize to pending, got %s", inv.Status)
	}
}

func TestParseCreateInvoiceRejected(t *testing.T) {
	body := []byte(`{"ok":false,"error":{"code":400,"name":"AMOUNT_TOO_SMALL"}}`)
	_, err := parseCreateInvoice(body)
	if err == nil {
		t.Fatalf("should fail")
	}
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("want ErrGateway, got %v", err)
	}
}

func TestParseCreateInvoiceMissingFields(t *testing.T) {
	body := []byte(`{"ok":true,"result":{"status":"active"}}`)
	if _, err := parseCreateInvoice(body); err == nil {
		t.Fatalf("missing invoice_id/pay_url should fail")
	}
}

func TestParseCreateInvoiceBadJSON(t *testing.T) {
	if _, err := parseCreateInvoice([]byte("<html>502</html>")); err == nil {
		t.Fatalf("non-json body should fail")
	}
}

func TestParseInvoiceStatus(t *testing.T) {
	body := []byte(`{"ok":true,"result":{"items":[
		{"invoice_id":1,"status":"active","pay_url":"u1"},
		{"invoice_id":2,"status":"paid","pay_url":"u2"},
		{"invoice_id":3,"status":"expired","pay_url":"u3"}]}}`)

	cases := []struct {
		id   string
		want string
	}{
		{"1", InvoiceStatusPending},
		{"2", InvoiceStatusPaid},
		{"3", InvoiceStatusExpired},
	}
	for _, c := range cases {
		got, err := parseInvoiceStatus(body, c.id)
		if err != nil {
			t.Fatalf("parse %s error: %v", c.id, err)
		}
		if got != c.want {
			t.Fatalf("invoice %s status = %s, want %s", c.id, got, c.want)
		}
	}
}

func TestParseInvoiceStatusNotFound(t *testing.T) {
	body := []byte(`{"ok":true,"result":{"items":[{"invoice_id":1,"status":"paid","pay_url":"u"}]}}`)
	_, err := parseInvoiceStatus(body, "999")
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("want ErrInvoiceNotFound, got %v", err)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"PAID":    InvoiceStatusPaid,
		" paid ":  InvoiceStatusPaid,
		"expired": InvoiceStatusExpired,
		"active":  InvoiceStatusPending,
		"":        InvoiceStatusPending,
	}
	for in, want := range cases {
		if got := normalizeStatus(in); got != want {
			t.Fatalf("normalizeStatus(%q) = %s, want %s", in, got, want)
		}
	}
}
