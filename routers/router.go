package routers

import (
	"dice-server/internal/config"
	"dice-server/internal/controller/api"
	"dice-server/internal/metrics"
	"dice-server/internal/middleware"

	beego "github.com/beego/beego/v2/server/web"
)

// Init 注册HTTP路由与全局过滤器，须在配置加载与 api.Init 之后调用
func Init() {
	cfg := config.Get()

	// 全局过滤器（按执行顺序）
	// 1. Panic Recovery（最先执行，捕获所有 panic）
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RecoveryFilter)

	// 2. 请求ID注入
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RequestIDFilter)

	// 3. CORS 处理（如果启用）
	if cfg != nil && cfg.CORS.Enabled {
		beego.InsertFilter("/*", beego.BeforeExec, middleware.CORSFilter)
	}

	// 4. HTTP 指标收集
	beego.InsertFilter("/*", beego.BeforeExec, metrics.HTTPMetricsFilter)
	beego.InsertFilter("/*", beego.FinishRouter, metrics.HTTPMetricsAfter)

	// 健康检查（无需认证）
	beego.Router("/healthz", &api.HealthController{}, "get:Healthz")
	beego.Router("/readyz", &api.HealthController{}, "get:Readyz")

	// ========== 业务 API（需要认证） ==========

	// 登录换票无需用户认证（登出需要携带有效令牌，控制器内自行校验）
	beego.Router("/api/auth/login", &api.AuthController{}, "post:Login")
	beego.Router("/api/auth/logout", &api.AuthController{}, "post:Logout")

	// 注册无需令牌（get-or-create，由接入方在自己侧完成身份校验）
	beego.Router("/api/user/register", &api.UserController{}, "post:Register")

	// 房间与用户接口：用户认证（demo 模式下信任 user_id 参数）
	beego.InsertFilter("/api/room/*", beego.BeforeExec, middleware.UserAuthFilter)
	beego.InsertFilter("/api/rooms", beego.BeforeExec, middleware.UserAuthFilter)
	beego.InsertFilter("/api/user/profile", beego.BeforeExec, middleware.UserAuthFilter)
	beego.InsertFilter("/api/user/balance", beego.BeforeExec, middleware.UserAuthFilter)
	beego.InsertFilter("/api/user/stats", beego.BeforeExec, middleware.UserAuthFilter)

	// 写接口限流（建房/加入）
	if cfg != nil && cfg.RateLimit.Enabled {
		beego.InsertFilter("/api/room/create", beego.BeforeExec, middleware.RateLimitFilter)
		beego.InsertFilter("/api/room/join", beego.BeforeExec, middleware.RateLimitFilter)
	}

	beego.Router("/api/room/create", &api.RoomController{}, "post:Create")
	beego.Router("/api/room/join", &api.RoomController{}, "post:Join")
	beego.Router("/api/room/code/:code", &api.RoomController{}, "get:DetailByCode")
	beego.Router("/api/room/:id/result", &api.RoomController{}, "get:Result")
	beego.Router("/api/room/:id", &api.RoomController{}, "get:Detail")
	beego.Router("/api/rooms", &api.RoomController{}, "get:List")

	beego.Router("/api/user/profile", &api.UserController{}, "get:Profile")
	beego.Router("/api/user/balance", &api.UserController{}, "get:Balance")
	beego.Router("/api/user/stats", &api.UserController{}, "get:Stats")

	// ========== 管理 API（需要管理员认证） ==========

	if cfg != nil && cfg.Auth.Admin.Enabled {
		beego.InsertFilter("/api/admin/*", beego.BeforeExec, middleware.AdminAuthFilter)
	}
	beego.Router("/api/admin/deposit", &api.AdminController{}, "post:Deposit")
	beego.Router("/api/admin/withdraw", &api.AdminController{}, "post:Withdraw")
	beego.Router("/api/admin/user/:id/ban", &api.AdminController{}, "post:Ban")
	beego.Router("/api/admin/user/:id/unban", &api.AdminController{}, "post:Unban")
	beego.Router("/api/admin/room/:id/close", &api.AdminController{}, "post:CloseRoom")
	beego.Router("/api/admin/stats", &api.AdminController{}, "get:Stats")
}
