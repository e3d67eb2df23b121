package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	beegocontext "github.com/beego/beego/v2/server/web/context"
)

// IsJSONContentType 判断是否为 JSON 请求
func IsJSONContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.Contains(ct, "json")
}

// 金额格式校验：非负，最多两位小数（预编译正则）
var moneyRe = regexp.MustCompile(`^(?:0|[1-9]\d*)(?:\.\d{1,2})?$`)

// IsMoneyFormat 判断金额格式
func IsMoneyFormat(s string) bool {
	return moneyRe.MatchString(strings.TrimSpace(s))
}

// 默认输入保护参数
const (
	defaultJSONMaxBytes int64         = 1 << 20 // 1MB
	defaultParseTimeout time.Duration = 1 * time.Second
)

type deadlineReader struct {
	r        io.Reader
	deadline time.Time
}

func (dr *deadlineReader) Read(p []byte) (int, error) {
	if time.Now().After(dr.deadline) {
		return 0, fmt.Errorf("read timeout")
	}
	return dr.r.Read(p)
}

// jsonBodyReader 在 JSON 分支下为请求体增加大小限制与解析超时保护
func jsonBodyReader(ctx *beegocontext.Context) io.Reader {
	lr := io.LimitReader(ctx.Request.Body, defaultJSONMaxBytes)
	return &deadlineReader{r: lr, deadline: time.Now().Add(defaultParseTimeout)}
}

// GetTraceID 统一提取 trace_id：优先从中间件注入的数据取，其次从常见请求头降级
func GetTraceID(ctx *beegocontext.Context) string {
	if v := ctx.Input.GetData("trace_id"); v != nil {
		return fmt.Sprint(v)
	}
	if h := strings.TrimSpace(ctx.Input.Header("X-Trace-ID")); h != "" {
		return h
	}
	if h := strings.TrimSpace(ctx.Input.Header("Trace-Id")); h != "" {
		return h
	}
	return ""
}

// parseByContentType 按 Content-Type 选择解析函数，减少重复 if/else 分支
func parseByContentType[T any](ctx *beegocontext.Context,
	jsonParser func(io.Reader) (T, bool, string),
	formParser func(*beegocontext.Context) (T, bool, string),
) (T, bool, string) {
	ct := ctx.Input.Header("Content-Type")
	if IsJSONContentType(ct) {
		return jsonParser(jsonBodyReader(ctx))
	}
	return formParser(ctx)
}

// CreateRoomParsed 为解析后的开房入参（与控制器/服务层解耦）
type CreateRoomParsed struct {
	BetAmount      string `json:"bet_amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ParseCreateRoomFromJSON 解析 JSON 到 CreateRoomParsed。失败返回 false 与错误消息。
func ParseCreateRoomFromJSON(r io.Reader) (CreateRoomParsed, bool, string) {
	var out CreateRoomParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return CreateRoomParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

// ParseCreateRoomFromForm 从表单读取字段，返回 CreateRoomParsed。失败返回 false 与可读错误信息。
func ParseCreateRoomFromForm(ctx *beegocontext.Context) (CreateRoomParsed, bool, string) {
	var out CreateRoomParsed
	out.BetAmount = strings.TrimSpace(ctx.Input.Query("bet_amount"))
	out.IdempotencyKey = strings.TrimSpace(ctx.Input.Query("idempotency_key"))
	return out, true, ""
}

// ValidateCreateRoom 对通用字段做二次校验（适用于 JSON 与 FORM）。失败返回 false 与错误消息。
func ValidateCreateRoom(in *CreateRoomParsed) (bool, string) {
	in.BetAmount = strings.TrimSpace(in.BetAmount)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.BetAmount == "" || in.IdempotencyKey == "" {
		return false, "missing required fields: bet_amount/idempotency_key"
	}
	// 额外长度保护，避免异常超长输入
	if len(in.BetAmount) > 32 || len(in.IdempotencyKey) > 64 {
		return false, "invalid request"
	}
	if !IsMoneyFormat(in.BetAmount) {
		return false, "bet_amount must be numeric with up to 2 decimals"
	}
	return true, ""
}

// ParseAndValidateCreateRoom 按 Content-Type 自动解析并做统一校验
func ParseAndValidateCreateRoom(ctx *beegocontext.Context) (CreateRoomParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseCreateRoomFromJSON, ParseCreateRoomFromForm)
	if !ok {
		return CreateRoomParsed{}, false, msg
	}
	if ok, msg := ValidateCreateRoom(&out); !ok {
		return CreateRoomParsed{}, false, msg
	}
	return out, true, ""
}

// -------- JoinRoom helpers --------

type JoinRoomParsed struct {
	RoomID int64 `json:"room_id"`
}

func ParseJoinRoomFromJSON(r io.Reader) (JoinRoomParsed, bool, string) {
	var out JoinRoomParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return JoinRoomParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseJoinRoomFromForm(ctx *beegocontext.Context) (JoinRoomParsed, bool, string) {
	var out JoinRoomParsed
	idStr := strings.TrimSpace(ctx.Input.Query("room_id"))
	if idStr == "" {
		return JoinRoomParsed{}, false, "room_id required"
	}
	v, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return JoinRoomParsed{}, false, "room_id must be integer"
	}
	out.RoomID = v
	return out, true, ""
}

func ValidateJoinRoom(in *JoinRoomParsed) (bool, string) {
	if in.RoomID <= 0 {
		return false, "room_id required"
	}
	return true, ""
}

func ParseAndValidateJoinRoom(ctx *beegocontext.Context) (JoinRoomParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseJoinRoomFromJSON, ParseJoinRoomFromForm)
	if !ok {
		return JoinRoomParsed{}, false, msg
	}
	if ok, msg := ValidateJoinRoom(&out); !ok {
		return JoinRoomParsed{}, false, msg
	}
	return out, true, ""
}

// -------- Register helpers --------

type RegisterParsed struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func ParseRegisterFromJSON(r io.Reader) (RegisterParsed, bool, string) {
	var out RegisterParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return RegisterParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseRegisterFromForm(ctx *beegocontext.Context) (RegisterParsed, bool, string) {
	var out RegisterParsed
	idStr := strings.TrimSpace(ctx.Input.Query("user_id"))
	if idStr == "" {
		return RegisterParsed{}, false, "user_id required"
	}
	v, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return RegisterParsed{}, false, "user_id must be integer"
	}
	out.UserID = v
	out.Username = strings.TrimSpace(ctx.Input.Query("username"))
	out.DisplayName = strings.TrimSpace(ctx.Input.Query("display_name"))
	return out, true, ""
}

func ValidateRegister(in *RegisterParsed) (bool, string) {
	in.Username = strings.TrimSpace(in.Username)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.UserID <= 0 || in.Username == "" {
		return false, "missing required fields: user_id/username"
	}
	if len(in.Username) > 64 || len(in.DisplayName) > 128 {
		return false, "invalid request"
	}
	return true, ""
}

func ParseAndValidateRegister(ctx *beegocontext.Context) (RegisterParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseRegisterFromJSON, ParseRegisterFromForm)
	if !ok {
		return RegisterParsed{}, false, msg
	}
	if ok, msg := ValidateRegister(&out); !ok {
		return RegisterParsed{}, false, msg
	}
	return out, true, ""
}

// -------- AdminFunds helpers --------

// AdminFundsParsed 管理端充值/提现入参
type AdminFundsParsed struct {
	UserID int64  `json:"user_id"`
	Amount string `json:"amount"`
	Remark string `json:"remark"`
}

func ParseAdminFundsFromJSON(r io.Reader) (AdminFundsParsed, bool, string) {
	var out AdminFundsParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return AdminFundsParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseAdminFundsFromForm(ctx *beegocontext.Context) (AdminFundsParsed, bool, string) {
	var out AdminFundsParsed
	idStr := strings.TrimSpace(ctx.Input.Query("user_id"))
	if idStr == "" {
		return AdminFundsParsed{}, false, "user_id required"
	}
	v, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return AdminFundsParsed{}, false, "user_id must be integer"
	}
	out.UserID = v
	out.Amount = strings.TrimSpace(ctx.Input.Query("amount"))
	out.Remark = strings.TrimSpace(ctx.Input.Query("remark"))
	return out, true, ""
}

func ValidateAdminFunds(in *AdminFundsParsed) (bool, string) {
	in.Amount = strings.TrimSpace(in.Amount)
	if in.UserID <= 0 {
		return false, "user_id required"
	}
	if in.Amount == "" || !IsMoneyFormat(in.Amount) {
		return false, "amount must be numeric with up to 2 decimals"
	}
	if len(in.Amount) > 32 || len(in.Remark) > 255 {
		return false, "invalid request"
	}
	return true, ""
}

func ParseAndValidateAdminFunds(ctx *beegocontext.Context) (AdminFundsParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseAdminFundsFromJSON, ParseAdminFundsFromForm)
	if !ok {
		return AdminFundsParsed{}, false, msg
	}
	if ok, msg := ValidateAdminFunds(&out); !ok {
		return AdminFundsParsed{}, false, msg
	}
	return out, true, ""
}
