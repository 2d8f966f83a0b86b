package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/barterhub/backend/internal/cache"
	"github.com/barterhub/backend/internal/config"
	"github.com/barterhub/backend/internal/db"
	"github.com/barterhub/backend/internal/model"
)

const confirmTokenTTL = 24 * time.Hour

var ErrConfirmTokenInvalid = errors.New("confirmation token invalid or expired")

// MailRateLimitError throttles confirmation resends per email address.
type MailRateLimitError struct {
	RetryAfter time.Duration
}

func (e *MailRateLimitError) Error() string {
	return "confirmation mail rate limited"
}

type Mailer interface {
	SendConfirmationMail(ctx context.Context, toEmail, toName, tokenStr string) error
}

type MailConfirmStore interface {
	InsertConfirmationToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumeConfirmationToken(ctx context.Context, tokenHash string) (string, error)
	ConfirmUserEmail(ctx context.Context, userID string) error
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
	GetUserByIdentifier(ctx context.Context, loginOrEmail string) (*model.User, error)
}

type MailConfirmService struct {
	store     MailConfirmStore
	counters  *cache.Counters
	freshness FreshnessStore
	mailer    Mailer
	logger    *zap.Logger

	resendWindow time.Duration
	resendMax    int64
}

func NewMailConfirmService(
	store MailConfirmStore,
	counters *cache.Counters,
	freshness FreshnessStore,
	mailer Mailer,
	cfg config.SecurityConfig,
	logger *zap.Logger,
) (*MailConfirmService, error) {
	window, err := time.ParseDuration(cfg.MailResendWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid MAIL_RESEND_WINDOW: %w", err)
	}

	max, err := strconv.ParseInt(cfg.MailResendMax, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAIL_RESEND_MAX: %w", err)
	}

	return &MailConfirmService{
		store:        store,
		counters:     counters,
		freshness:    freshness,
		mailer:       mailer,
		logger:       logger,
		resendWindow: window,
		resendMax:    max,
	}, nil
}

// SendConfirmation issues a fresh token, invalidating any previous one,
// and mails the confirmation link. Resends share a per-email fixed-window
// counter, the same pattern as every other throttle here.
func (s *MailConfirmService) SendConfirmation(ctx context.Context, user *model.User) error {
	key := "mail:confirm:" + hashValue(user.Email)
	count, err := s.counters.Incr(ctx, key, s.resendWindow)
	if err != nil {
		return err
	}
	if count > s.resendMax {
		retry, err := s.counters.Retry(ctx, key)
		if err != nil {
			return err
		}
		return &MailRateLimitError{RetryAfter: retry}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	tokenStr := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.store.InsertConfirmationToken(ctx, user.ID, hashValue(tokenStr), time.Now().Add(confirmTokenTTL)); err != nil {
		return err
	}

	return s.mailer.SendConfirmationMail(ctx, user.Email, user.Name, tokenStr)
}

// Resend looks the account up by identifier. An unknown identifier is
// reported as success so the endpoint cannot be used for enumeration.
func (s *MailConfirmService) Resend(ctx context.Context, loginOrEmail string) error {
	user, err := s.store.GetUserByIdentifier(ctx, loginOrEmail)
	if err != nil {
		if db.IsNoRows(err) {
			return nil
		}
		return err
	}
	if user.EmailConfirmed {
		return nil
	}
	return s.SendConfirmation(ctx, user)
}

func (s *MailConfirmService) Confirm(ctx context.Context, tokenStr string) error {
	if tokenStr == "" {
		return ErrConfirmTokenInvalid
	}

	userID, err := s.store.ConsumeConfirmationToken(ctx, hashValue(tokenStr))
	if err != nil {
		if db.IsNoRows(err) {
			return ErrConfirmTokenInvalid
		}
		return err
	}

	if err := s.store.ConfirmUserEmail(ctx, userID); err != nil {
		return err
	}

	// email_confirmed is part of the profile: advance the freshness key.
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.freshness.Touch(ctx, user.ID, user.UpdatedAt); err != nil {
		return err
	}

	s.logger.Info("email confirmed", zap.String("user_id", userID))
	return nil
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
