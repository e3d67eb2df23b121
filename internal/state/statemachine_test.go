package state

import "testing"

func TestNextStateValid(t *testing.T) {
	cases := []struct {
		cur, evt, want string
	}{
		{StateAwaitingPayment, EvtSettle, StateSettled},
		{StateAwaitingPayment, EvtExpire, StateExpired},
	}
	for _, c := range cases {
		got, err := NextState(c.cur, c.evt)
		if err != nil {
			t.Fatalf("NextState(%s,%s) err: %v", c.cur, c.evt, err)
		}
		if got != c.want {
			t.Fatalf("NextState(%s,%s) = %s, want %s", c.cur, c.evt, got, c.want)
		}
	}
}

func TestNextStateInvalid(t *testing.T) {
	cases := []struct{ cur, evt string }{
		{StateSettled, EvtSettle},
		{StateSettled, EvtExpire},
		{StateExpired, EvtSettle},
		{StateExpired, EvtExpire},
		{StateAwaitingPayment, "unknown"},
	}
	for _, c := range cases {
		if _, err := NextState(c.cur, c.evt); err == nil {
			t.Fatalf("NextState(%s,%s) should fail", c.cur, c.evt)
		}
	}
}

func TestCodeRoundTrip(t *testing.T) {
	for _, s := range []string{StateAwaitingPayment, StateSettled, StateExpired} {
		if CodeToState(StateToCode(s)) != s {
			t.Fatalf("code round trip failed for %s", s)
		}
	}
	if CodeToState(99) != "unknown" {
		t.Fatalf("unknown code should map to unknown")
	}
	if StateToCode("nope") != 0 {
		t.Fatalf("unknown state should map to 0")
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(StateAwaitingPayment) {
		t.Fatalf("awaiting_payment is not terminal")
	}
	if !IsTerminal(StateSettled) || !IsTerminal(StateExpired) {
		t.Fatalf("settled/expired are terminal")
	}
}
