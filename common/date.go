package common

import (
	"time"
)

// 获取当天 00:00:00 和 第二天 00:00:00（毫秒，用于按天统计）
func GetTodayRangeMillis(t time.Time) (start, end int64) {
	loc, _ := time.LoadLocation("Asia/Shanghai")
	year, month, day := t.In(loc).Date()

	startTime := time.Date(year, month, day, 0, 0, 0, 0, loc)
	endTime := startTime.AddDate(0, 0, 1) // +1 天

	return startTime.UnixMilli(), endTime.UnixMilli()
}
