package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/barterhub/backend/internal/db"
	"github.com/barterhub/backend/internal/model"
)

const (
	minLoginLength    = 3
	minPasswordLength = 8
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmailInUse      = errors.New("email already in use")
	ErrLoginInUse      = errors.New("login already in use")
	ErrCountryNotFound = errors.New("country not found")
	ErrUserNotFound    = errors.New("user not found")
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
	GetUserByIdentifier(ctx context.Context, loginOrEmail string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, user *model.User) (*model.User, error)
	GetCountryByID(ctx context.Context, id string) (*model.Country, error)
	ListCountries(ctx context.Context) ([]*model.Country, error)
}

// FreshnessStore is the per-user last-modified key the rest of the
// platform queries before deciding on a full profile fetch.
type FreshnessStore interface {
	Touch(ctx context.Context, userID string, updatedAt time.Time) error
	Get(ctx context.Context, userID string) (time.Time, bool, error)
}

type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, user *model.User) error
}

type UsersService struct {
	repo      UserRepository
	freshness FreshnessStore
	confirm   ConfirmationSender
	logger    *zap.Logger
}

func NewUsersService(repo UserRepository, freshness FreshnessStore, confirm ConfirmationSender, logger *zap.Logger) *UsersService {
	return &UsersService{repo: repo, freshness: freshness, confirm: confirm, logger: logger}
}

func (s *UsersService) Register(ctx context.Context, req model.RegisterRequest, acceptLanguage string) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	login := strings.TrimSpace(req.Login)
	name := strings.TrimSpace(req.Name)

	if !strings.Contains(email, "@") || len(login) < minLoginLength || len(login) > 64 {
		return nil, ErrInvalidInput
	}
	if len(req.Password) < minPasswordLength || len(req.Password) > 128 {
		return nil, ErrInvalidInput
	}

	if existing, err := s.repo.GetUserByIdentifier(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailInUse
	} else if err != nil && !db.IsNoRows(err) {
		return nil, err
	}

	if existing, err := s.repo.GetUserByIdentifier(ctx, login); err == nil && existing != nil {
		return nil, ErrLoginInUse
	} else if err != nil && !db.IsNoRows(err) {
		return nil, err
	}

	country, err := s.repo.GetCountryByID(ctx, req.CountryID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrCountryNotFound
		}
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, &model.User{
		Email:          email,
		Login:          login,
		Name:           name,
		PasswordHash:   string(hash),
		Role:           model.RoleUser,
		Active:         true,
		EmailConfirmed: false,
		Phone:          req.Phone,
		CountryID:      &country.ID,
		Language:       detectLanguage(acceptLanguage),
		Theme:          model.ThemeLight,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}

	if err := s.freshness.Touch(ctx, user.ID, user.UpdatedAt); err != nil {
		return nil, err
	}

	if err := s.confirm.SendConfirmation(ctx, user); err != nil {
		// Registration stands; the user can request a resend.
		s.logger.Warn("confirmation mail failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	return user, nil
}

func (s *UsersService) GetSelf(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateSelf applies the changed fields and then advances the freshness
// key, always after the durable commit.
func (s *UsersService) UpdateSelf(ctx context.Context, userID string, req model.UpdateSelfRequest) (*model.User, error) {
	user, err := s.GetSelf(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if req.Language != nil {
		lang := model.UserLanguage(*req.Language)
		switch lang {
		case model.LangEN, model.LangPL, model.LangRU, model.LangDE:
			user.Language = lang
		default:
			return nil, ErrInvalidInput
		}
	}
	if req.Theme != nil {
		theme := model.UserTheme(*req.Theme)
		switch theme {
		case model.ThemeLight, model.ThemeDark, model.ThemeSystem:
			user.Theme = theme
		default:
			return nil, ErrInvalidInput
		}
	}

	updated, err := s.repo.UpdateUserProfile(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.freshness.Touch(ctx, updated.ID, updated.UpdatedAt); err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *UsersService) ListCountries(ctx context.Context) ([]*model.Country, error) {
	return s.repo.ListCountries(ctx)
}

func detectLanguage(header string) model.UserLanguage {
	if header == "" {
		return model.LangEN
	}

	lang := strings.ToLower(strings.SplitN(header, ",", 2)[0])
	switch {
	case strings.HasPrefix(lang, "pl"):
		return model.LangPL
	case strings.HasPrefix(lang, "ru"):
		return model.LangRU
	case strings.HasPrefix(lang, "de"):
		return model.LangDE
	default:
		return model.LangEN
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
