package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository/mocks"
	"github.com/jwalitptl/lifedrop-api/pkg/auth"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/security"
)

func setup(t *testing.T) (*mocks.UserRepository, Service, *model.User) {
	t.Helper()
	hasher := security.NewBcryptHasher(4)
	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)

	hid := uuid.New()
	user := &model.User{
		Base:         model.Base{ID: uuid.New()},
		Email:        "admin@kem.org",
		PasswordHash: hash,
		Role:         model.RoleHospitalAdmin,
		HospitalID:   &hid,
	}
	users := &mocks.UserRepository{}
	svc := NewService(users, auth.NewManager("test-secret", "lifedrop", time.Hour), hasher, logger.Nop())
	return users, svc, user
}

func TestLoginIssuesTokenThatAuthenticates(t *testing.T) {
	users, svc, user := setup(t)
	users.On("GetByEmail", mock.Anything, "admin@kem.org").Return(user, nil)
	users.On("UpdateLastLogin", mock.Anything, user.ID, mock.Anything).Return(nil)

	tok, err := svc.Login(context.Background(), model.LoginRequest{Email: " Admin@KEM.org ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.NotEmpty(t, tok.AccessToken)
	assert.NotNil(t, tok.User.LastLoginAt)

	actor, err := svc.Authenticate(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.UserID)
	assert.Equal(t, model.RoleHospitalAdmin, actor.Role)
	assert.True(t, actor.ManagesHospital(*user.HospitalID))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	users, svc, user := setup(t)
	users.On("GetByEmail", mock.Anything, "admin@kem.org").Return(user, nil)
	users.On("GetByEmail", mock.Anything, "nobody@kem.org").Return(nil, errors.NotFound("user", nil))

	_, err := svc.Login(context.Background(), model.LoginRequest{Email: "admin@kem.org", Password: "wrong password"})
	assert.Equal(t, 401, errors.HTTPStatus(err))

	_, err = svc.Login(context.Background(), model.LoginRequest{Email: "nobody@kem.org", Password: "whatever1"})
	assert.Equal(t, 401, errors.HTTPStatus(err))
	users.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	_, svc, _ := setup(t)
	_, err := svc.Authenticate(context.Background(), "not-a-token")
	assert.Equal(t, 401, errors.HTTPStatus(err))
}
