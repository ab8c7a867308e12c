package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/repository"
)

// ErrSessionNotFound indicates an expired or unknown session token.
var ErrSessionNotFound = errors.New("session not found")

// Session describes an authenticated grader worker session.
type Session struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AuthService manages worker sessions for the legacy xqueue surface, which
// authenticates with a login endpoint and a session cookie.
type AuthService interface {
	// Login verifies credentials and issues an opaque session token.
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, token string) error
	// Validate resolves a session token, refreshing its TTL.
	Validate(ctx context.Context, token string) (Session, error)
}

type authService struct {
	users      repository.UserRepository
	sessions   *redis.Client
	sessionTTL time.Duration
	logger     zerolog.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users repository.UserRepository, sessions *redis.Client, sessionTTL time.Duration, logger zerolog.Logger) AuthService {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}

	return &authService{
		users:      users,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		logger:     logger.With().Str("component", "auth_service").Logger(),
	}
}

func sessionKey(token string) string {
	return "submissions:session:" + token
}

func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to load user %s: %w", username, err)
	}

	if !user.CheckPassword(password) {
		s.logger.Warn().Str("username", username).Msg("login rejected")
		return "", ErrInvalidCredentials
	}

	session := Session{Username: user.Username, Role: user.Role}
	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	token := uuid.NewString()
	if err := s.sessions.Set(ctx, sessionKey(token), payload, s.sessionTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Info().Str("username", username).Msg("worker logged in")

	return token, nil
}

func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := s.sessions.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to drop session: %w", err)
	}

	return nil
}

func (s *authService) Validate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionNotFound
	}

	payload, err := s.sessions.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return Session{}, ErrSessionNotFound
	}

	// Sliding expiry: active workers stay logged in.
	if err := s.sessions.Expire(ctx, sessionKey(token), s.sessionTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to refresh session ttl")
	}

	return session, nil
}

// EnsureUser creates a service account when it does not already exist. Used to
// bootstrap grader workers from configuration.
func EnsureUser(ctx context.Context, users repository.UserRepository, username, password, role string) error {
	if username == "" || password == "" {
		return nil
	}

	if _, err := users.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	user := models.User{Username: username, Role: role}
	if err := user.SetPassword(password); err != nil {
		return fmt.Errorf("failed to hash password for %s: %w", username, err)
	}

	return users.Create(ctx, &user)
}
