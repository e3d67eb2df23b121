package helper

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// 房间码：9 位随机数字 + 1 位 Luhn 校验位，共 10 位。
// 校验位让输错一位的房间码在落库查询之前就被拒绝。

// ValidRoomCode 校验房间码格式（纯数字且 Luhn 校验通过）
func ValidRoomCode(code string) bool {
	if len(code) == 0 {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c < '0' || c > '9' {
			return false
		}
	}
	sum := 0
	double := false
	for i := len(code) - 1; i >= 0; i-- {
		d := int(code[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// NewRoomCode 生成一个新房间码，允许前导零
func NewRoomCode() (string, error) {
	var b strings.Builder
	b.Grow(10)
	for i := 0; i < 9; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	body := b.String()
	return body + string('0'+luhnDigit(body)), nil
}

// luhnDigit 计算校验位（校验位在末位，故从 body 右端开始翻倍）
func luhnDigit(body string) byte {
	sum := 0
	double := true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return byte((10 - (sum % 10)) % 10)
}
