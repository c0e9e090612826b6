package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/crypto-shop/internal/domain/models"
	security "github.com/linemk/crypto-shop/internal/jwt-new"
	"github.com/linemk/crypto-shop/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	log       *slog.Logger
	userRepo  storage.UserStorage
	sessions  storage.SessionStorage
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, sessions storage.SessionStorage, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		log:       log,
		userRepo:  userRepo,
		sessions:  sessions,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

type AuthServiceInterface interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, sessionID string) error
}

var _ AuthServiceInterface = (*AuthService)(nil)

// Register создаёт пользователя. Пароль хранится только как bcrypt-хэш.
func (a *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	const op = "service.AuthService.Register"
	logger := a.log.With(slog.String("op", op), slog.String("username", username))

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}

	user, err := a.userRepo.CreateUser(ctx, &models.User{
		Username: username,
		Email:    email,
		PassHash: passHash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			logger.Warn("user already exists")
			return nil, fmt.Errorf("%s: %w", op, ErrAlreadyExists)
		}
		logger.Error("failed to create user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, ErrInternal)
	}

	logger.Info("user registered", slog.Int64("userID", user.ID))
	return user, nil
}

// Login проверяет пароль, открывает сессию и выдаёт токен, привязанный к ней.
func (a *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	const op = "service.AuthService.Login"
	logger := a.log.With(slog.String("op", op), slog.String("username", username))

	user, err := a.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			return "", fmt.Errorf("%s: %w", op, ErrUnauthenticated)
		}
		logger.Error("failed to get user", slog.Any("error", err))
		return "", fmt.Errorf("%s: %w", op, ErrInternal)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		logger.Warn("invalid password")
		return "", fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	sid, err := a.sessions.Create(ctx, user.ID, a.tokenTTL)
	if err != nil {
		logger.Error("failed to create session", slog.Any("error", err))
		return "", fmt.Errorf("%s: %w", op, ErrInternal)
	}

	token, err := security.NewToken(user, sid, a.jwtSecret, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", fmt.Errorf("%s: %w", op, ErrInternal)
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return token, nil
}

func (a *AuthService) Logout(ctx context.Context, sessionID string) error {
	const op = "service.AuthService.Logout"

	if err := a.sessions.Invalidate(ctx, sessionID); err != nil {
		a.log.Error("failed to invalidate session", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
	return nil
}
