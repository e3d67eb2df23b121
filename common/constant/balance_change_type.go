package constant

// 账变类型常量定义
const (
	BizTypeDeposit    = 1 // 充值（后台入账）
	BizTypeWithdraw   = 2 // 提现
	BizTypeWin        = 3 // 对局赢得奖金
	BizTypeProjectFee = 4 // 平台抽成
)

// 账变类型码与字符串的双写映射，账本落库时两者互补
var BalanceChangeTypeDesc = map[int]string{
	BizTypeDeposit:    "deposit",
	BizTypeWithdraw:   "withdraw",
	BizTypeWin:        "win",
	BizTypeProjectFee: "project_fee",
}

// BalanceChangeTypeCode 按字符串反查账变类型码，未知返回 0
func BalanceChangeTypeCode(desc string) int {
	for code, d := range BalanceChangeTypeDesc {
		if d == desc {
			return code
		}
	}
	return 0
}
