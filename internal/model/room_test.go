package model

import (
	"strings"
	"testing"
)

func TestRoomPatchBuild(t *testing.T) {
	status := int8(2)
	winner := int64(42)
	prize := 19.0
	p := &RoomPatch{Status: &status, WinnerID: &winner, PrizeAmount: &prize}

	set, args, err := p.build()
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	if len(args) != 3 {
		t.Fatalf("want 3 args, got %d", len(args))
	}
	for _, col := range []string{"status = ?", "winner_id = ?", "prize_amount = ?"} {
		if !strings.Contains(set, col) {
			t.Fatalf("set clause missing %q: %s", col, set)
		}
	}
	// 未赋值的字段不得出现
	for _, col := range []string{"player1_dice", "player2_id", "finished_at"} {
		if strings.Contains(set, col) {
			t.Fatalf("set clause must not contain %q: %s", col, set)
		}
	}
}

func TestRoomPatchBuildOrderMatchesArgs(t *testing.T) {
	paid := int8(1)
	dice := int8(6)
	p := &RoomPatch{Player1Paid: &paid, Player1Dice: &dice}

	set, args, err := p.build()
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	// 列顺序与参数顺序一致：player1_paid 在 player1_dice 之前
	if strings.Index(set, "player1_paid") > strings.Index(set, "player1_dice") {
		t.Fatalf("column order unexpected: %s", set)
	}
	if args[0] != int8(1) || args[1] != int8(6) {
		t.Fatalf("args order mismatch: %v", args)
	}
}

func TestRoomPatchEmpty(t *testing.T) {
	p := &RoomPatch{}
	if _, _, err := p.build(); err == nil {
		t.Fatalf("empty patch should fail")
	}
}
