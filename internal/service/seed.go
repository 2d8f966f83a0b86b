package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/barterhub/backend/internal/config"
	"github.com/barterhub/backend/internal/db"
	"github.com/barterhub/backend/internal/model"
)

// EnsureAdmin creates the bootstrap admin account once. The admin is born
// confirmed so it can log in before any mail flow exists.
func (s *UsersService) EnsureAdmin(ctx context.Context, cfg config.AdminConfig) error {
	if cfg.Email == "" || cfg.Login == "" || cfg.Password == "" {
		return nil
	}

	_, err := s.repo.GetUserByIdentifier(ctx, cfg.Email)
	if err == nil {
		return nil
	}
	if !db.IsNoRows(err) {
		return err
	}

	if len(cfg.Password) < minPasswordLength {
		return fmt.Errorf("ADMIN_PASSWORD too short")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user, err := s.repo.CreateUser(ctx, &model.User{
		Email:          strings.ToLower(cfg.Email),
		Login:          cfg.Login,
		Name:           "Administrator",
		PasswordHash:   string(hash),
		Role:           model.RoleAdmin,
		Active:         true,
		EmailConfirmed: true,
		Language:       model.LangEN,
		Theme:          model.ThemeLight,
	})
	if err != nil {
		return err
	}

	return s.freshness.Touch(ctx, user.ID, user.UpdatedAt)
}
