package state

import "fmt"

// State 房间状态
const (
	StateAwaitingPayment = "awaiting_payment" // 等待付款（建房即生成账单，房间不存在无账单的中间态）
	StateSettled         = "settled"          // 已结算（骰子已掷出，派彩已落账）
	StateExpired         = "expired"          // 已过期（轮询预算耗尽或后台强制关闭）
)

// Event 房间事件
const (
	EvtSettle = "settle"
	EvtExpire = "expire"
)

// 状态码与字符串双写，库表存数值码
const (
	CodeAwaitingPayment int8 = 1
	CodeSettled         int8 = 2
	CodeExpired         int8 = 3
)

// NextState 根据当前状态与事件计算下一个状态，非法转换报错
func NextState(cur, evt string) (string, error) {
	switch cur {
	case StateAwaitingPayment:
		if evt == EvtSettle {
			return StateSettled, nil
		}
		if evt == EvtExpire {
			return StateExpired, nil
		}
	}
	return cur, fmt.Errorf("invalid transition: %s --%s--> ?", cur, evt)
}

// CodeToState 数值码转状态字符串
func CodeToState(code int8) string {
	switch code {
	case CodeAwaitingPayment:
		return StateAwaitingPayment
	case CodeSettled:
		return StateSettled
	case CodeExpired:
		return StateExpired
	}
	return "unknown"
}

// StateToCode 状态字符串转数值码，未知返回 0
func StateToCode(s string) int8 {
	switch s {
	case StateAwaitingPayment:
		return CodeAwaitingPayment
	case StateSettled:
		return CodeSettled
	case StateExpired:
		return CodeExpired
	}
	return 0
}

// IsTerminal 终态判断：终态房间不再被轮询器或结算器触碰
func IsTerminal(s string) bool {
	return s == StateSettled || s == StateExpired
}
