package helper

import (
	"strings"
	"testing"
)

func TestIsMoneyFormat(t *testing.T) {
	valid := []string{"0", "1", "10", "0.5", "0.05", "123.45", " 7.70 "}
	for _, s := range valid {
		if !IsMoneyFormat(s) {
			t.Fatalf("expected valid: %q", s)
		}
	}
	invalid := []string{"", "-1", "1.234", "01", ".5", "1.", "abc", "1e3", "1,000"}
	for _, s := range invalid {
		if IsMoneyFormat(s) {
			t.Fatalf("expected invalid: %q", s)
		}
	}
}

func TestParseCreateRoomFromJSON(t *testing.T) {
	in := `{"bet_amount":"10.50","idempotency_key":"abc-123"}`
	out, ok, msg := ParseCreateRoomFromJSON(strings.NewReader(in))
	if !ok {
		t.Fatalf("parse failed: %s", msg)
	}
	if out.BetAmount != "10.50" || out.IdempotencyKey != "abc-123" {
		t.Fatalf("unexpected parse result: %+v", out)
	}

	if _, ok, _ := ParseCreateRoomFromJSON(strings.NewReader("{bad json")); ok {
		t.Fatal("expected parse failure on bad json")
	}
}

func TestValidateCreateRoom(t *testing.T) {
	cases := []struct {
		in CreateRoomParsed
		ok bool
	}{
		{CreateRoomParsed{BetAmount: "10", IdempotencyKey: "k1"}, true},
		{CreateRoomParsed{BetAmount: " 0.01 ", IdempotencyKey: "k1"}, true},
		{CreateRoomParsed{BetAmount: "", IdempotencyKey: "k1"}, false},
		{CreateRoomParsed{BetAmount: "10", IdempotencyKey: ""}, false},
		{CreateRoomParsed{BetAmount: "1.234", IdempotencyKey: "k1"}, false},
		{CreateRoomParsed{BetAmount: "-1", IdempotencyKey: "k1"}, false},
		{CreateRoomParsed{BetAmount: "10", IdempotencyKey: strings.Repeat("x", 65)}, false},
	}
	for i, c := range cases {
		in := c.in
		ok, msg := ValidateCreateRoom(&in)
		if ok != c.ok {
			t.Fatalf("case %d: got ok=%v (%s), want %v", i, ok, msg, c.ok)
		}
	}
}

func TestValidateJoinRoom(t *testing.T) {
	if ok, _ := ValidateJoinRoom(&JoinRoomParsed{RoomID: 7}); !ok {
		t.Fatal("room_id 7 should be valid")
	}
	if ok, _ := ValidateJoinRoom(&JoinRoomParsed{RoomID: 0}); ok {
		t.Fatal("room_id 0 should be invalid")
	}
	if ok, _ := ValidateJoinRoom(&JoinRoomParsed{RoomID: -1}); ok {
		t.Fatal("negative room_id should be invalid")
	}
}

func TestValidateAdminFunds(t *testing.T) {
	cases := []struct {
		in AdminFundsParsed
		ok bool
	}{
		{AdminFundsParsed{UserID: 1, Amount: "100"}, true},
		{AdminFundsParsed{UserID: 1, Amount: "0.05", Remark: "bonus"}, true},
		{AdminFundsParsed{UserID: 0, Amount: "100"}, false},
		{AdminFundsParsed{UserID: 1, Amount: ""}, false},
		{AdminFundsParsed{UserID: 1, Amount: "-5"}, false},
		{AdminFundsParsed{UserID: 1, Amount: "1.999"}, false},
	}
	for i, c := range cases {
		in := c.in
		ok, msg := ValidateAdminFunds(&in)
		if ok != c.ok {
			t.Fatalf("case %d: got ok=%v (%s), want %v", i, ok, msg, c.ok)
		}
	}
}

func TestValidateRegister(t *testing.T) {
	if ok, _ := ValidateRegister(&RegisterParsed{UserID: 1, Username: "alice"}); !ok {
		t.Fatal("expected valid register input")
	}
	if ok, _ := ValidateRegister(&RegisterParsed{UserID: 0, Username: "alice"}); ok {
		t.Fatal("user_id required")
	}
	if ok, _ := ValidateRegister(&RegisterParsed{UserID: 1, Username: "  "}); ok {
		t.Fatal("username required")
	}
}
