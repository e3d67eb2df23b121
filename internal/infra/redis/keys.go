package redis

import "strconv"

// Redis Key 定义与构造器
// 统一管理业务使用的 Redis Key，避免散落的魔法字符串，便于统一维护与变更。

const (
	// PrefixRoomIdemResult：建房幂等“结果缓存”Key 的前缀。
	// 作用：缓存某个 idempotency key 对应的第一次成功结果（房间号 JSON），用于后续重复请求直接返回。
	PrefixRoomIdemResult = "room:idem:result:"
	// PrefixRoomIdemLock：建房幂等“进行中锁”Key 的前缀。
	// 作用：使用 SETNX + TTL 标记 idempotency key 正在处理，吸收瞬时重复请求，减轻数据库压力。
	PrefixRoomIdemLock = "room:idem:lock:"

	// PrefixRoomResult：结算结果缓存，用于前端快速查询已结算房间
	PrefixRoomResult = "room:result:"
	// PrefixRoomPollLock：支付轮询互斥锁，保证同一房间同时只有一个轮询器
	PrefixRoomPollLock = "room:poll:lock:"
)

// IdemResultKey：构造幂等“结果缓存”的完整 Key。
// 形如：room:idem:result:{idempotency_key}
func IdemResultKey(k string) string { return PrefixRoomIdemResult + k }

// IdemLockKey：构造幂等“进行中锁”的完整 Key。
// 形如：room:idem:lock:{idempotency_key}
func IdemLockKey(k string) string { return PrefixRoomIdemLock + k }

// RoomResultKey：构造结算结果缓存 Key。形如：room:result:{room_id}
func RoomResultKey(roomID int64) string { return PrefixRoomResult + strconv.FormatInt(roomID, 10) }

// PollLockKey：构造支付轮询锁 Key。形如：room:poll:lock:{room_id}
func PollLockKey(roomID int64) string { return PrefixRoomPollLock + strconv.FormatInt(roomID, 10) }
