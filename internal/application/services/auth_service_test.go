package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/user"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// memCredentials validates against the in-memory learner store the same way
// the sqlite repository does: nil learner on a wrong password, not an error.
type memCredentials struct {
	repo *memLearnerRepo
}

func (c *memCredentials) ValidateCredentials(ctx context.Context, email, password string) (*user.Learner, error) {
	learner, err := c.repo.FindByEmail(ctx, email)
	if err != nil || learner == nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(learner.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return learner, nil
}

func newTestAuth(t *testing.T) (*AuthService, *memLearnerRepo) {
	t.Helper()
	origSecret, origKey := config.JWTSecret, config.AESKey
	config.JWTSecret = "test-signing-secret"
	config.AESKey = "0123456789abcdef0123456789abcdef"
	t.Cleanup(func() { config.JWTSecret, config.AESKey = origSecret, origKey })

	repo := newMemLearnerRepo()
	return NewAuthService(repo, &memCredentials{repo: repo}, quietLogger(), performance.NewTracker(performance.DefaultTrackerConfig())), repo
}

func TestRegisterValidation(t *testing.T) {
	auth, repo := newTestAuth(t)
	repo.add(&user.Learner{ID: "existing", Email: "taken@example.com"})

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing email", RegisterRequest{Password: "long-enough"}},
		{"malformed email", RegisterRequest{Email: "not-an-email", Password: "long-enough"}},
		{"short password", RegisterRequest{Email: "a@example.com", Password: "short"}},
		{"unknown timezone", RegisterRequest{Email: "a@example.com", Password: "long-enough", Timezone: "Mars/Olympus_Mons"}},
		{"duplicate email", RegisterRequest{Email: "taken@example.com", Password: "long-enough"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Register(context.Background(), &tt.req)
			assert.ErrorIs(t, err, rewards.ErrValidation)
		})
	}
}

func TestRegisterIssuesDecodableToken(t *testing.T) {
	auth, _ := newTestAuth(t)

	result, err := auth.Register(context.Background(), &RegisterRequest{
		DisplayName: "Ana",
		Email:       "Ana@Example.com",
		Password:    "long-enough",
		Timezone:    "America/Halifax",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotEmpty(t, result.Token)

	profile, err := auth.DecodeSessionToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.Profile.UserID, profile.UserID)
	assert.Equal(t, "ana@example.com", profile.Email)
	assert.Equal(t, "America/Halifax", profile.Timezone)
}

func TestRegisterDefaultsDisplayName(t *testing.T) {
	auth, _ := newTestAuth(t)

	result, err := auth.Register(context.Background(), &RegisterRequest{
		Email:    "bruno@example.com",
		Password: "long-enough",
	})
	require.NoError(t, err)
	assert.Equal(t, "bruno", result.Profile.DisplayName)
}

func TestLoginWrongPasswordIsNotAnError(t *testing.T) {
	auth, _ := newTestAuth(t)
	_, err := auth.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "long-enough",
	})
	require.NoError(t, err)

	result, err := auth.Login(context.Background(), "ana@example.com", "wrong-password")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "invalid credentials", result.Error)
	assert.Empty(t, result.Token)

	result, err = auth.Login(context.Background(), "nobody@example.com", "long-enough")
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestLoginNormalizesEmail(t *testing.T) {
	auth, _ := newTestAuth(t)
	_, err := auth.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "long-enough",
	})
	require.NoError(t, err)

	result, err := auth.Login(context.Background(), "  ANA@example.com ", "long-enough")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Token)
}

func TestDecodeSessionTokenRejectsBadTokens(t *testing.T) {
	auth, _ := newTestAuth(t)

	for _, token := range []string{"", "garbage", strings.Repeat("x.", 40)} {
		_, err := auth.DecodeSessionToken(token)
		assert.ErrorIs(t, err, rewards.ErrSessionExpired)
	}
}

func TestRefreshTokenUnknownUser(t *testing.T) {
	auth, _ := newTestAuth(t)
	_, err := auth.RefreshToken(context.Background(), "no-such-user")
	assert.ErrorIs(t, err, rewards.ErrSessionExpired)
}

func TestDecodeRefreshTokenAcceptsRecentlyExpired(t *testing.T) {
	origTTL := config.SessionTokenTTL
	config.SessionTokenTTL = -time.Minute
	defer func() { config.SessionTokenTTL = origTTL }()

	auth, _ := newTestAuth(t)
	result, err := auth.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "long-enough",
	})
	require.NoError(t, err)

	// The token is already expired, so the normal decode refuses it but
	// the refresh decode still identifies the learner.
	_, err = auth.DecodeSessionToken(result.Token)
	assert.ErrorIs(t, err, rewards.ErrSessionExpired)

	profile, err := auth.DecodeRefreshToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.Profile.UserID, profile.UserID)
}

func TestDecodeRefreshTokenRejectsBeyondGrace(t *testing.T) {
	origTTL := config.SessionTokenTTL
	config.SessionTokenTTL = -(config.SessionRefreshGrace + time.Hour)
	defer func() { config.SessionTokenTTL = origTTL }()

	auth, _ := newTestAuth(t)
	result, err := auth.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "long-enough",
	})
	require.NoError(t, err)

	_, err = auth.DecodeRefreshToken(result.Token)
	assert.ErrorIs(t, err, rewards.ErrSessionExpired)
}

func TestDecodeRefreshTokenRejectsBadSignature(t *testing.T) {
	auth, _ := newTestAuth(t)
	_, err := auth.DecodeRefreshToken("not-a-token")
	assert.ErrorIs(t, err, rewards.ErrSessionExpired)
}

func TestRefreshTokenReissues(t *testing.T) {
	auth, _ := newTestAuth(t)
	result, err := auth.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "long-enough",
	})
	require.NoError(t, err)

	refreshed, err := auth.RefreshToken(context.Background(), result.Profile.UserID)
	require.NoError(t, err)
	assert.True(t, refreshed.Success)

	profile, err := auth.DecodeSessionToken(refreshed.Token)
	require.NoError(t, err)
	assert.Equal(t, result.Profile.UserID, profile.UserID)
}
