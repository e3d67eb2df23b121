package service

import (
	"testing"

	decimal "github.com/shopspring/decimal"
)

func TestComputePayoutConservation(t *testing.T) {
	rate := decimal.NewFromFloat(0.05)
	cases := []struct {
		bet     string
		players int64
	}{
		{"0.01", 2},
		{"0.01", 1},
		{"1", 2},
		{"3.33", 2},
		{"3.33", 1},
		{"10", 2},
		{"99.99", 2},
		{"0.03", 2},
		{"123456.78", 2},
	}
	for _, c := range cases {
		bet, err := decimal.NewFromString(c.bet)
		if err != nil {
			t.Fatalf("bad bet %s: %v", c.bet, err)
		}
		pot, fee, prize := computePayout(bet, c.players, rate)
		// 资金守恒：奖金加抽成必须精确等于彩池
		if !prize.Add(fee).Equal(pot) {
			t.Fatalf("bet=%s players=%d: prize(%s)+fee(%s) != pot(%s)",
				c.bet, c.players, prize, fee, pot)
		}
		if !pot.Equal(bet.Mul(decimal.NewFromInt(c.players)).Round(2)) {
			t.Fatalf("bet=%s players=%d: pot=%s", c.bet, c.players, pot)
		}
		if fee.IsNegative() || prize.IsNegative() {
			t.Fatalf("bet=%s players=%d: negative fee/prize %s/%s", c.bet, c.players, fee, prize)
		}
		// 两位小数约束
		if fee.Exponent() < -2 || prize.Exponent() < -2 {
			t.Fatalf("bet=%s players=%d: more than 2 decimals fee=%s prize=%s", c.bet, c.players, fee, prize)
		}
	}
}

func TestComputePayoutZeroRate(t *testing.T) {
	pot, fee, prize := computePayout(decimal.NewFromInt(10), 2, decimal.Zero)
	if !fee.IsZero() {
		t.Fatalf("fee should be zero, got %s", fee)
	}
	if !prize.Equal(pot) {
		t.Fatalf("prize %s != pot %s", prize, pot)
	}
}

func TestDecideOutcome(t *testing.T) {
	cases := []struct {
		d1, d2   int
		wantCode int8
		wantStr  string
	}{
		{6, 1, 1, "player1"},
		{2, 5, 2, "player2"},
		{4, 4, 3, "tie"},
		{1, 1, 3, "tie"},
		{6, 6, 3, "tie"},
		// 单人局：对手掷 0，玩家1必胜
		{1, 0, 1, "player1"},
		{6, 0, 1, "player1"},
	}
	for _, c := range cases {
		code, str := decideOutcome(c.d1, c.d2)
		if code != c.wantCode || str != c.wantStr {
			t.Fatalf("decideOutcome(%d,%d) = (%d,%s), want (%d,%s)",
				c.d1, c.d2, code, str, c.wantCode, c.wantStr)
		}
	}
}

func TestRollDieBounds(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		v := rollDie()
		if v < 1 || v > 6 {
			t.Fatalf("roll out of range: %d", v)
		}
		seen[v] = true
	}
	// 1000 次全部点数都应出现过
	for f := 1; f <= 6; f++ {
		if !seen[f] {
			t.Fatalf("face %d never rolled in 1000 tries", f)
		}
	}
}

func TestFeeRateDefault(t *testing.T) {
	r := feeRate()
	if r.LessThan(decimal.Zero) || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		t.Fatalf("fee rate out of range: %s", r)
	}
}
