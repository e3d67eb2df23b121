package service

import (
	"context"
	"fmt"

	"dice-server/internal/model"

	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// 用户业务：注册与资料查询

type UserService struct {
	db *sqlx.DB
}

func NewUserService(db *sqlx.DB) *UserService { return &UserService{db: db} }

// Register 注册用户（幂等：已存在则返回现有记录）
// user_id 由接入方分配，例如 IM 侧的用户ID
func (s *UserService) Register(ctx context.Context, userID int64, username, displayName string) (*model.Users, error) {
	user := &model.Users{
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
	}
	if err := user.Insert(ctx, s.db); err != nil {
		if me, ok := err.(*mysqlerr.MySQLError); ok && me.Number == 1062 {
			return model.GetUser(ctx, s.db, userID)
		}
		return nil, err
	}
	return user, nil
}

// GetProfile 查询用户资料（余额、胜负统计）
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*model.Users, error) {
	user, err := model.GetUser(ctx, s.db, userID)
	if err != nil {
		if model.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	return user, nil
}
