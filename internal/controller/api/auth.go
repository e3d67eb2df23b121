package api

import (
	"strings"
	"time"

	"dice-server/internal/auth"
	helper "dice-server/internal/common/helper"
	"dice-server/internal/common/response"
	"dice-server/internal/config"

	beego "github.com/beego/beego/v2/server/web"
)

type AuthController struct{ beego.Controller }

// Login 签发访问令牌：POST /api/auth/login
// 接入方完成自己的身份校验后换取本服务的 JWT；用户必须已注册
func (c *AuthController) Login() {
	traceID := helper.GetTraceID(c.Ctx)

	rp, ok, msg := helper.ParseAndValidateRegister(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	u, err := userSvc.GetProfile(c.Ctx.Request.Context(), rp.UserID)
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	accessToken, err := auth.GenerateAccessToken(u.UserID, u.Username)
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}
	refreshToken, err := auth.GenerateRefreshToken(u.UserID, u.Username)
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	cfg := config.Get()
	expiresIn := int64(0)
	if cfg != nil {
		expiresIn = int64(cfg.Auth.JWT.AccessTokenTTL)
	}

	response.Success(&c.Controller, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    expiresIn,
	}, traceID)
}

// Logout 吊销当前访问令牌：POST /api/auth/logout
func (c *AuthController) Logout() {
	traceID := helper.GetTraceID(c.Ctx)

	claims, err := auth.VerifyJWTToken(c.Ctx)
	if err != nil {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	parts := strings.Split(strings.TrimSpace(c.Ctx.Input.Header("Authorization")), " ")
	tokenString := parts[len(parts)-1]

	expiresAt := time.Now().Add(time.Hour)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := auth.RevokeToken(c.Ctx.Request.Context(), tokenString, expiresAt); err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, nil, traceID)
}
