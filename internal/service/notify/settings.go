package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

type PreferenceStore interface {
	GetSettings(ctx context.Context, userID int) (*model.NotificationSettings, error)
	SaveToken(ctx context.Context, userID int, token string) error
	ClearToken(ctx context.Context, userID int) error
	UpdatePreferences(ctx context.Context, s *model.NotificationSettings) error
}

// PreferencesUpdate 未出现的字段保持原值
type PreferencesUpdate struct {
	Reminders         *bool `json:"reminders"`
	DecisionFollowUps *bool `json:"decisionFollowUps"`
	UrgentEmails      *bool `json:"urgentEmails"`
}

type SettingsService struct {
	store  PreferenceStore
	logger *zap.Logger
}

func NewSettingsService(store PreferenceStore, logger *zap.Logger) *SettingsService {
	return &SettingsService{store: store, logger: logger}
}

func (s *SettingsService) RegisterToken(ctx context.Context, userID int, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation("pushToken", "Push token is required")
	}
	if err := s.store.SaveToken(ctx, userID, token); err != nil {
		return err
	}
	s.logger.Info("Push token registered", zap.Int("user_id", userID))
	return nil
}

func (s *SettingsService) ClearToken(ctx context.Context, userID int) error {
	return s.store.ClearToken(ctx, userID)
}

func (s *SettingsService) Get(ctx context.Context, userID int) (*model.NotificationSettings, error) {
	return s.store.GetSettings(ctx, userID)
}

func (s *SettingsService) Update(ctx context.Context, userID int, u PreferencesUpdate) (*model.NotificationSettings, error) {
	current, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Reminders != nil {
		current.Reminders = *u.Reminders
	}
	if u.DecisionFollowUps != nil {
		current.DecisionFollowUps = *u.DecisionFollowUps
	}
	if u.UrgentEmails != nil {
		current.UrgentEmails = *u.UrgentEmails
	}
	if err := s.store.UpdatePreferences(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}
