package api

import (
	"errors"
	"strconv"
	"strings"

	helper "dice-server/internal/common/helper"
	"dice-server/internal/common/response"
	"dice-server/internal/service"

	beego "github.com/beego/beego/v2/server/web"
)

// 管理接口：人工入账、提现、封禁、关房、平台统计
// 全部挂在 AdminAuthFilter 之后，控制器内不再做权限判断

type AdminController struct{ beego.Controller }

// Deposit 人工入账：POST /api/admin/deposit
func (c *AdminController) Deposit() {
	traceID := helper.GetTraceID(c.Ctx)

	fp, ok, msg := helper.ParseAndValidateAdminFunds(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	if err := adminSvc.Deposit(c.Ctx.Request.Context(), fp.UserID, fp.Amount, fp.Remark, traceID); err != nil {
		writeAdminError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"user_id": fp.UserID,
		"amount":  fp.Amount,
	}, traceID)
}

// Withdraw 提现到支付网关：POST /api/admin/withdraw
// 先扣账再调网关，网关失败时自动冲正
func (c *AdminController) Withdraw() {
	traceID := helper.GetTraceID(c.Ctx)

	fp, ok, msg := helper.ParseAndValidateAdminFunds(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	if err := adminSvc.Withdraw(c.Ctx.Request.Context(), fp.UserID, fp.Amount, traceID); err != nil {
		writeAdminError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"user_id": fp.UserID,
		"amount":  fp.Amount,
	}, traceID)
}

// adminUserID 从路径或表单提取目标用户ID
func adminUserID(c *beego.Controller) (int64, bool) {
	s := strings.TrimSpace(c.Ctx.Input.Param(":id"))
	if s == "" {
		s = strings.TrimSpace(c.Ctx.Input.Query("user_id"))
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil && v > 0
}

// Ban 封禁用户：POST /api/admin/user/:id/ban
func (c *AdminController) Ban() {
	c.setBanned(true)
}

// Unban 解封用户：POST /api/admin/user/:id/unban
func (c *AdminController) Unban() {
	c.setBanned(false)
}

func (c *AdminController) setBanned(banned bool) {
	traceID := helper.GetTraceID(c.Ctx)

	uid, ok := adminUserID(&c.Controller)
	if !ok {
		response.BadRequest(&c.Controller, "user_id must be integer", traceID)
		return
	}

	if err := adminSvc.SetBanned(c.Ctx.Request.Context(), uid, banned); err != nil {
		writeAdminError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"user_id": uid,
		"banned":  banned,
	}, traceID)
}

// CloseRoom 强制关闭等待支付的房间：POST /api/admin/room/:id/close
func (c *AdminController) CloseRoom() {
	traceID := helper.GetTraceID(c.Ctx)

	idStr := c.Ctx.Input.Param(":id")
	roomID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || roomID <= 0 {
		response.BadRequest(&c.Controller, "room id must be integer", traceID)
		return
	}

	if err := adminSvc.CloseRoom(c.Ctx.Request.Context(), roomSvc, roomID, traceID); err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{"room_id": roomID}, traceID)
}

// Stats 平台统计：GET /api/admin/stats
func (c *AdminController) Stats() {
	traceID := helper.GetTraceID(c.Ctx)

	stats, err := adminSvc.GetPlatformStats(c.Ctx.Request.Context())
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, stats, traceID)
}

func writeAdminError(c *beego.Controller, err error, traceID string) {
	switch {
	case errors.Is(err, service.ErrBadRequest):
		response.BadRequest(c, err.Error(), traceID)
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, "用户不存在", traceID)
	case errors.Is(err, service.ErrInsufficient):
		response.Conflict(c, response.CodeInsufficientBalance, traceID)
	case errors.Is(err, service.ErrPaymentInit):
		response.ErrorWithMessage(c, 502, response.CodePaymentInitFailed, "支付网关暂不可用，请稍后重试", traceID)
	default:
		response.InternalError(c, traceID)
	}
}
