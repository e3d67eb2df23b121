package api

import (
	"context"
	"time"

	infmysql "dice-server/internal/infra/mysql"
	infrds "dice-server/internal/infra/redis"

	beego "github.com/beego/beego/v2/server/web"
)

// HealthController 提供健康检查端点：/healthz 与 /readyz

type HealthController struct{ beego.Controller }

// Healthz 存活探针：仅返回进程存活
func (c *HealthController) Healthz() {
	c.Ctx.Output.SetStatus(200)
	_ = c.Ctx.Output.Body([]byte("ok"))
}

// Readyz 就绪探针：MySQL 必须可达；Redis 为可选依赖，不可达不影响就绪
func (c *HealthController) Readyz() {
	ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), 2*time.Second)
	defer cancel()

	db := infmysql.DB()
	if db == nil {
		c.Ctx.Output.SetStatus(503)
		_ = c.Ctx.Output.Body([]byte("db not initialized"))
		return
	}
	if err := db.PingContext(ctx); err != nil {
		c.Ctx.Output.SetStatus(503)
		_ = c.Ctx.Output.Body([]byte("db unavailable"))
		return
	}

	body := "ready"
	if r := infrds.Client(); r != nil {
		if err := r.Ping(ctx).Err(); err != nil {
			body = "ready (redis degraded)"
		}
	}
	c.Ctx.Output.SetStatus(200)
	_ = c.Ctx.Output.Body([]byte(body))
}
