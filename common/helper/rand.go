package helper

import (
	"time"

	"golang.org/x/exp/rand"
)

// GenerateRandNum 返回 [min, max) 区间的随机整数，用于打散轮询节奏等非资金场景
func GenerateRandNum(min, max int) int {
	rand.Seed(uint64(time.Now().UnixNano()))

	return min + rand.Intn(max-min)
}
