package api

import (
	"errors"
	"strconv"

	helper "dice-server/internal/common/helper"
	"dice-server/internal/common/response"
	"dice-server/internal/config"
	"dice-server/internal/model"
	"dice-server/internal/service"
	"dice-server/internal/state"

	beego "github.com/beego/beego/v2/server/web"

	mysqlerr "github.com/go-sql-driver/mysql"
)

type RoomController struct{ beego.Controller }

// 建房请求参数
type CreateRoomRequestParam struct {
	BetAmount string `json:"bet_amount"` // 单人赌注，最多两位小数
	/*
		幂等键：客户端生成并随请求传入，用于在网络重试/超时重发时保证"同一次建房只生效一次"。
		使用约定：
		- 对于"同一次建房"的所有重试，请传相同的 idempotency_key；
		- 业务语义不同（如金额不同）的请求必须使用不同的 key；
		- 建议生成方式：UUID（推荐）。
		服务端幂等保证（多层防护）：
		1) Redis 进行中锁（约45秒）：并发重复请求直接返回 202，并携带 Retry-After: 1；
		2) MySQL 唯一键：在事务内先插入 idempotency_keys(idempotency_key)，若已存在则返回首次建出的房间；
		3) 结果缓存：首次成功结果会写入 Redis（短期缓存），后续重复可直接读缓存快速返回。
	*/
	IdempotencyKey string `json:"idempotency_key"`
}

// currentUserID 取认证中间件注入的用户ID
func currentUserID(c *beego.Controller) (int64, bool) {
	v := c.Ctx.Input.GetData("user_id")
	if v == nil {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok && uid > 0
}

// Create 处理建房接口：POST /api/room/create
func (c *RoomController) Create() {
	traceID := helper.GetTraceID(c.Ctx)

	// 1) 解析入参与基本校验
	// 这里必须要对业务参数严格校验，后续service不再重复校验
	rp, ok, msg := helper.ParseAndValidateCreateRoom(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	uid, ok := currentUserID(&c.Controller)
	if !ok {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	out, err := roomSvc.CreateRoom(c.Ctx.Request.Context(), service.CreateRoomInput{
		UserID:         uid,
		BetAmount:      rp.BetAmount,
		IdempotencyKey: rp.IdempotencyKey,
		TraceID:        traceID,
	})
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, out, traceID)
}

// Join 处理加入房间接口：POST /api/room/join
func (c *RoomController) Join() {
	traceID := helper.GetTraceID(c.Ctx)

	jp, ok, msg := helper.ParseAndValidateJoinRoom(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	uid, ok := currentUserID(&c.Controller)
	if !ok {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	out, err := roomSvc.JoinRoom(c.Ctx.Request.Context(), uid, jp.RoomID, traceID)
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, out, traceID)
}

// Detail 查询房间快照：GET /api/room/:id
func (c *RoomController) Detail() {
	traceID := helper.GetTraceID(c.Ctx)

	idStr := c.Ctx.Input.Param(":id")
	roomID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || roomID <= 0 {
		response.BadRequest(&c.Controller, "room id must be integer", traceID)
		return
	}

	room, err := roomSvc.GetRoomDetail(c.Ctx.Request.Context(), roomID)
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, roomView(room), traceID)
}

// Result 查询结算结果：GET /api/room/:id/result
// 缓存优先，未结算的房间返回 409
func (c *RoomController) Result() {
	traceID := helper.GetTraceID(c.Ctx)

	idStr := c.Ctx.Input.Param(":id")
	roomID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || roomID <= 0 {
		response.BadRequest(&c.Controller, "room id must be integer", traceID)
		return
	}

	res, err := roomSvc.GetRoomResult(c.Ctx.Request.Context(), roomID)
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	out := map[string]interface{}{
		"room_id":      res.RoomID,
		"player1_id":   res.Player1ID,
		"player1_dice": res.Player1Dice,
		"player2_dice": res.Player2Dice,
		"result":       res.Result,
		"winner_id":    res.WinnerID,
		"pot_amount":   res.PotAmount,
		"prize_amount": res.PrizeAmount,
	}
	if res.Player2ID != 0 {
		out["player2_id"] = res.Player2ID
	}
	response.Success(&c.Controller, out, traceID)
}

// DetailByCode 按房间码查询：GET /api/room/code/:code
func (c *RoomController) DetailByCode() {
	traceID := helper.GetTraceID(c.Ctx)

	code := c.Ctx.Input.Param(":code")
	room, err := roomSvc.GetRoomByCode(c.Ctx.Request.Context(), code)
	if err != nil {
		writeRoomError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, roomView(room), traceID)
}

// List 开放房间列表（大厅）：GET /api/rooms
func (c *RoomController) List() {
	traceID := helper.GetTraceID(c.Ctx)

	items, err := roomSvc.ListOpenRooms(c.Ctx.Request.Context())
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	list := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		list = append(list, map[string]interface{}{
			"room_id":    it.RoomID,
			"room_code":  it.RoomCode,
			"creator_id": it.CreatorID,
			"bet_amount": it.BetAmount,
			"currency":   it.Currency,
			"created_at": it.CreatedAt,
		})
	}
	// 附带投注快捷金额与币种，供前端渲染下注面板
	out := map[string]interface{}{"rooms": list}
	if cfg := config.Get(); cfg != nil {
		out["bet_presets"] = cfg.Game.BetPresets
		out["currency"] = cfg.Game.Currency
	}
	response.Success(&c.Controller, out, traceID)
}

// roomView 组装对外的房间快照，结算后附带骰子与结果字段
func roomView(room *model.Room) map[string]interface{} {
	out := map[string]interface{}{
		"room_id":      room.ID,
		"room_code":    room.RoomCode,
		"creator_id":   room.CreatorID,
		"player1_id":   room.Player1ID,
		"player2_id":   room.Player2ID,
		"bet_amount":   room.BetAmount,
		"currency":     room.Currency,
		"status":       state.CodeToState(room.Status),
		"player1_paid": room.Player1Paid == 1,
		"player2_paid": room.Player2Paid == 1,
		"created_at":   room.CreatedAt,
	}
	if room.Status == state.CodeSettled {
		out["player1_dice"] = room.Player1Dice
		out["player2_dice"] = room.Player2Dice
		out["result"] = room.ResultStr
		out["winner_id"] = room.WinnerID
		out["prize_amount"] = room.PrizeAmount
		out["finished_at"] = room.FinishedAt
	}
	if room.Status == state.CodeExpired {
		out["finished_at"] = room.FinishedAt
	}
	return out
}

// writeRoomError 统一映射房间域错误到 HTTP 响应
func writeRoomError(c *beego.Controller, err error, traceID string) {
	// MySQL 唯一键冲突
	if me, ok := err.(*mysqlerr.MySQLError); ok && me.Number == 1062 {
		response.Conflict(c, response.CodeDuplicateKey, traceID)
		return
	}
	switch {
	case errors.Is(err, service.ErrBadRequest):
		response.BadRequest(c, err.Error(), traceID)
	case errors.Is(err, service.ErrDuplicateInFlight):
		response.Accepted(c, "重复请求进行中，请稍后重试", traceID)
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, "用户不存在", traceID)
	case errors.Is(err, service.ErrUserBanned):
		response.Conflict(c, response.CodeUserBanned, traceID)
	case errors.Is(err, service.ErrRoomNotFound):
		response.NotFound(c, "房间不存在", traceID)
	case errors.Is(err, service.ErrRoomFull):
		response.Conflict(c, response.CodeRoomFull, traceID)
	case errors.Is(err, service.ErrSelfJoinForbidden):
		response.Conflict(c, response.CodeSelfJoinForbidden, traceID)
	case errors.Is(err, service.ErrRoomNotSettleable):
		response.Conflict(c, response.CodeRoomNotSettleable, traceID)
	case errors.Is(err, service.ErrPaymentInit):
		response.ErrorWithMessage(c, 502, response.CodePaymentInitFailed, "支付网关暂不可用，请稍后重试", traceID)
	default:
		response.InternalError(c, traceID)
	}
}
