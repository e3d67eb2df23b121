package api

import (
	helper "dice-server/internal/common/helper"
	"dice-server/internal/common/response"
	"dice-server/internal/config"
	"dice-server/internal/model"

	beego "github.com/beego/beego/v2/server/web"
)

type UserController struct{ beego.Controller }

// Register 用户注册（get-or-create）：POST /api/user/register
// 以外部用户ID为主键，重复注册返回已有用户，不报错
func (c *UserController) Register() {
	traceID := helper.GetTraceID(c.Ctx)

	rp, ok, msg := helper.ParseAndValidateRegister(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	u, err := userSvc.Register(c.Ctx.Request.Context(), rp.UserID, rp.Username, rp.DisplayName)
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, userView(u), traceID)
}

// Profile 查询当前用户余额与统计：GET /api/user/profile
func (c *UserController) Profile() {
	traceID := helper.GetTraceID(c.Ctx)

	uid, ok := currentUserID(&c.Controller)
	if !ok {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	u, err := userSvc.GetProfile(c.Ctx.Request.Context(), uid)
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, userView(u), traceID)
}

// Balance 查询当前用户余额：GET /api/user/balance
func (c *UserController) Balance() {
	traceID := helper.GetTraceID(c.Ctx)

	uid, ok := currentUserID(&c.Controller)
	if !ok {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	u, err := userSvc.GetProfile(c.Ctx.Request.Context(), uid)
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	cur := "USDT"
	if cfg := config.Get(); cfg != nil && cfg.Game.Currency != "" {
		cur = cfg.Game.Currency
	}
	response.Success(&c.Controller, map[string]interface{}{
		"user_id":  u.UserID,
		"balance":  u.Balance,
		"currency": cur,
	}, traceID)
}

// Stats 查询当前用户对局统计：GET /api/user/stats
func (c *UserController) Stats() {
	traceID := helper.GetTraceID(c.Ctx)

	uid, ok := currentUserID(&c.Controller)
	if !ok {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	u, err := userSvc.GetProfile(c.Ctx.Request.Context(), uid)
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	total := u.TotalWins + u.TotalLosses
	winRate := 0.0
	if total > 0 {
		winRate = float64(u.TotalWins) / float64(total)
	}
	response.Success(&c.Controller, map[string]interface{}{
		"user_id":      u.UserID,
		"total_wins":   u.TotalWins,
		"total_losses": u.TotalLosses,
		"total_games":  total,
		"total_staked": u.TotalStaked,
		"win_rate":     winRate,
	}, traceID)
}

// userView 组装对外的用户快照，附带派生的胜率字段
func userView(u *model.Users) map[string]interface{} {
	total := u.TotalWins + u.TotalLosses
	winRate := 0.0
	if total > 0 {
		winRate = float64(u.TotalWins) / float64(total)
	}
	return map[string]interface{}{
		"user_id":      u.UserID,
		"username":     u.Username,
		"display_name": u.DisplayName,
		"balance":      u.Balance,
		"total_wins":   u.TotalWins,
		"total_losses": u.TotalLosses,
		"total_staked": u.TotalStaked,
		"win_rate":     winRate,
		"is_banned":    u.IsBanned == 1,
	}
}
