package service

import (
	"errors"
	"testing"
)

func TestParseBetAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1", "1", false},
		{"0.01", "0.01", false},
		{" 10.50 ", "10.5", false},
		{"3.339", "3.34", false}, // 超两位小数四舍五入
		{"0", "", true},
		{"-5", "", true},
		{"abc", "", true},
		{"", "", true},
		{"10000000000", "", true}, // 超出上限
	}
	for _, c := range cases {
		got, err := parseBetAmount(c.in)
		if c.wantErr {
			if err == nil {
				t.Fatalf("parseBetAmount(%q) expected error, got %s", c.in, got)
			}
			if !errors.Is(err, ErrBadRequest) {
				t.Fatalf("parseBetAmount(%q) error not ErrBadRequest: %v", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseBetAmount(%q) unexpected error: %v", c.in, err)
		}
		if got.String() != c.want {
			t.Fatalf("parseBetAmount(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestCurrencyDefault(t *testing.T) {
	if c := currency(); c == "" {
		t.Fatal("currency should never be empty")
	}
}
