package service

import "errors"

// 业务错误集合，控制器层据此映射响应码
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserBanned        = errors.New("user banned")
	ErrPaymentInit       = errors.New("payment init failed")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room already has two players")
	ErrSelfJoinForbidden = errors.New("cannot join your own room")
	// ErrRoomNotSettleable：房间已进入终态，结算请求按无操作处理
	ErrRoomNotSettleable = errors.New("room not settleable")
	// ErrPaymentIncomplete：有玩家尚未付款，不能结算
	ErrPaymentIncomplete = errors.New("payment incomplete")
	ErrDuplicateInFlight = errors.New("duplicate request in flight")
	ErrBadRequest        = errors.New("bad request")
	ErrInsufficient      = errors.New("insufficient balance")
)
