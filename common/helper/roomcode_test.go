package helper

import (
	"testing"
)

func TestRoomCodeGenerateAndValidate(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := NewRoomCode()
		if err != nil {
			t.Fatalf("generate error: %v", err)
		}
		if len(code) != 10 {
			t.Fatalf("len != 10: %s", code)
		}
		for j := 0; j < len(code); j++ {
			if code[j] < '0' || code[j] > '9' {
				t.Fatalf("non-digit: %s", code)
			}
		}
		if !ValidRoomCode(code) {
			t.Fatalf("checksum reject on generated code: %s", code)
		}
		// 改动任一位都应当被校验位拦下
		b := []byte(code)
		b[9] = byte('0' + (int(b[9]-'0')+1)%10)
		if ValidRoomCode(string(b)) {
			t.Fatalf("mutated code should fail: %s -> %s", code, string(b))
		}
	}
}

func TestRoomCodeRejectsGarbage(t *testing.T) {
	for _, code := range []string{"", "abc", "123456789x", "12345", "1234567890 "} {
		if ValidRoomCode(code) {
			t.Fatalf("should reject %q", code)
		}
	}
}
