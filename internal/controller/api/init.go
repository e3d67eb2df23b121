package api

import (
	"dice-server/internal/service"
)

// 控制器依赖由 main 在启动时注入，避免控制器自行拼装数据库/网关实例
var (
	roomSvc  *service.RoomService
	userSvc  *service.UserService
	adminSvc *service.AdminService
)

// Init 注入控制器层依赖，必须在路由注册前调用
func Init(room *service.RoomService, user *service.UserService, admin *service.AdminService) {
	roomSvc = room
	userSvc = user
	adminSvc = admin
}
