// Package auth 注册与登录，签发 JWT
package auth

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/pkg/rbac"
	"mailtriage/pkg/util"
)

const minPasswordLen = 8

type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

type Service struct {
	users     UserStore
	jwtSecret string
	logger    *zap.Logger
}

func NewService(users UserStore, jwtSecret string, logger *zap.Logger) *Service {
	return &Service{users: users, jwtSecret: jwtSecret, logger: logger}
}

// Register creates a new user.
func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("email", "a valid email is required")
	}
	if len(password) < minPasswordLen {
		return nil, apperr.Validation("password", "password must be at least 8 characters")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         rbac.RoleUser,
	}
	// 唯一索引冲突由仓储转换为 ConflictError
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("User registered", zap.Int("user_id", u.ID))
	return u, nil
}

// Login checks user credentials and returns JWT.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, err
	}
	if u == nil || !util.CheckPassword(password, u.PasswordHash) {
		return "", nil, apperr.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(u.ID, rbac.NormalizeRole(u.Role), s.jwtSecret)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}
