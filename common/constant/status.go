package constant

// user 封禁标记
const (
	UserBanNone = 0 // 未封禁
	UserBanned  = 1 // 已封禁，禁止开房/加入对局
)

// 平台抽成账户的哨兵用户ID，project_fee 账本记录统一记到该账户
const ProjectAccountID = 0
