package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
	"github.com/jwalitptl/lifedrop-api/pkg/auth"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/security"
)

var ErrInvalidCredentials = stderrors.New("invalid credentials")

type Service interface {
	Login(ctx context.Context, req model.LoginRequest) (*model.AuthToken, error)
	// Authenticate resolves a bearer token to the calling actor.
	Authenticate(ctx context.Context, token string) (model.Actor, error)
}

type service struct {
	users  repository.UserRepository
	jwt    auth.JWTService
	hasher security.PasswordHasher
	log    *logger.Logger
	now    func() time.Time
}

func NewService(users repository.UserRepository, jwt auth.JWTService, hasher security.PasswordHasher, log *logger.Logger) Service {
	return &service{
		users:  users,
		jwt:    jwt,
		hasher: hasher,
		log:    log.With("component", "auth_service"),
		now:    time.Now,
	}
}

func (s *service) Login(ctx context.Context, req model.LoginRequest) (*model.AuthToken, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Unauthorized(ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.log.Warn("failed login", "user_id", user.ID)
		return nil, errors.Unauthorized(ErrInvalidCredentials)
	}

	token, expiresAt, err := s.jwt.GenerateAccessToken(auth.Subject{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       string(user.Role),
		HospitalID: user.HospitalID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to record last login", "user_id", user.ID, "error", err.Error())
	} else {
		user.LastLoginAt = &now
	}

	return &model.AuthToken{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

func (s *service) Authenticate(_ context.Context, token string) (model.Actor, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return model.Actor{}, errors.Unauthorized(err)
	}
	role := model.Role(claims.Role)
	if !role.Valid() {
		return model.Actor{}, errors.Unauthorized(fmt.Errorf("unknown role %q", claims.Role))
	}
	return model.Actor{UserID: claims.UserID, Role: role, HospitalID: claims.HospitalID}, nil
}
