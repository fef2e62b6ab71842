// Package account registers visitors, checks credentials and manages refresh-token sessions.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/hash"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/tokens"
	"github.com/Skotchmaster/storefront/internal/validate"
)

var (
	ErrValidation         = errors.New("validation")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRefresh     = errors.New("refresh token expired or revoked")
)

type RegisterInput struct {
	Username        string `json:"username" form:"username" validate:"required,max=64"`
	Email           string `json:"email" form:"email" validate:"required,email,max=254"`
	Password        string `json:"password" form:"password" validate:"required,min=6,maxbytes=72"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password" validate:"required"`
}

type LoginInput struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// Session is what a successful login, registration or refresh hands back to the browser.
type Session struct {
	Account models.Account
	Access  tokens.Issued
	Refresh tokens.Issued
}

type Service struct {
	Repo   *GormRepo
	Issuer *tokens.Issuer
}

func NewService(gdb *gorm.DB, issuer *tokens.Issuer) *Service {
	return &Service{Repo: &GormRepo{DB: gdb}, Issuer: issuer}
}

// Register creates the account and logs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "account.register")

	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	acc := models.Account{Username: in.Username, Email: in.Email, PasswordHash: pwHash}
	if err := s.Repo.CreateAccount(ctx, &acc); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			l.Warn("register_error", "status", 409, "reason", "email already registered")
			return nil, err
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, err
	}

	return s.startSession(ctx, acc)
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "account.login")

	in.Email = normalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	acc, err := s.Repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if isNotFound(err) {
			l.Warn("login_failed", "status", 401, "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}
	if !hash.CheckPassword(acc.PasswordHash, in.Password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, ErrInvalidCredentials
	}

	return s.startSession(ctx, *acc)
}

// Refresh rotates a refresh token. The old token is revoked and cannot be replayed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.Issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefresh, err)
	}
	accountID, err := tokens.AccountID(claims.RegisteredClaims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefresh, err)
	}

	acc, err := s.Repo.FindByID(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	access, refresh, err := s.issuePair(*acc)
	if err != nil {
		return nil, err
	}

	next := refreshRow(acc.ID, refresh)
	if err := s.Repo.RotateRefresh(ctx, claims.ID, hash.Sha256Hex(refreshToken), &next); err != nil {
		return nil, err
	}

	return &Session{Account: *acc, Access: access, Refresh: refresh}, nil
}

// Logout revokes the refresh token. An unknown token is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.Repo.RevokeRefresh(ctx, hash.Sha256Hex(refreshToken))
}

func (s *Service) startSession(ctx context.Context, acc models.Account) (*Session, error) {
	access, refresh, err := s.issuePair(acc)
	if err != nil {
		return nil, err
	}
	row := refreshRow(acc.ID, refresh)
	if err := s.Repo.SaveRefresh(ctx, &row); err != nil {
		return nil, err
	}
	return &Session{Account: acc, Access: access, Refresh: refresh}, nil
}

func (s *Service) issuePair(acc models.Account) (tokens.Issued, tokens.Issued, error) {
	access, err := s.Issuer.NewAccess(acc.ID, acc.Username)
	if err != nil {
		return tokens.Issued{}, tokens.Issued{}, err
	}
	refresh, err := s.Issuer.NewRefresh(acc.ID)
	if err != nil {
		return tokens.Issued{}, tokens.Issued{}, err
	}
	return access, refresh, nil
}

func refreshRow(accountID uint, t tokens.Issued) models.RefreshToken {
	return models.RefreshToken{
		JTI:       t.JTI,
		AccountID: accountID,
		TokenHash: hash.Sha256Hex(t.Token),
		ExpiresAt: t.ExpiresAt.UTC(),
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
