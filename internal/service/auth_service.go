package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"convoyhub/config"
	"convoyhub/internal/auth"
	"convoyhub/internal/domain"
	"convoyhub/internal/models"
	"convoyhub/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailExists    = errors.New("email already registered")
	ErrUsernameExists = errors.New("username already taken")
	ErrInvalidCreds   = errors.New("invalid email or password")
)

const minPasswordLength = 8

// UserStore is the account side of the identity store.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RegisterInput struct {
	Email       string
	Username    string
	Password    string
	DisplayName string
}

type AuthService struct {
	cfg   *config.JWTConfig
	users UserStore
}

func NewAuthService(cfg *config.JWTConfig, users UserStore) *AuthService {
	return &AuthService{cfg: cfg, users: users}
}

func (s *AuthService) tokens(u *models.User) (*TokenPair, error) {
	access, err := auth.GenerateAccessToken(s.cfg, u.ID, u.Username)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken(s.cfg, u.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, *TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	if len(username) < 3 || len(username) > 64 {
		return nil, nil, fmt.Errorf("%w: username must be 3-64 characters", domain.ErrValidation)
	}
	if len(in.Password) < minPasswordLength {
		return nil, nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, nil, ErrEmailExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, nil, ErrUsernameExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	u := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(in.DisplayName),
	}
	if err := s.users.Create(ctx, u); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, ErrEmailExists
		}
		return nil, nil, err
	}
	pair, err := s.tokens(u)
	if err != nil {
		return u, nil, err
	}
	return u, pair, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, ErrInvalidCreds
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCreds
	}
	pair, err := s.tokens(u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := auth.ParseRefreshToken(s.cfg, refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}
	return s.tokens(u)
}
