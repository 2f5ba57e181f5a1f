// Package services provides application-level orchestration services
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/user"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/security"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// CredentialValidator checks an email/password pair against stored hashes.
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context, email, password string) (*user.Learner, error)
}

// AuthService handles account registration, sign-in, and JWT operations
type AuthService struct {
	learnerRepo user.LearnerRepository
	credentials CredentialValidator
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewAuthService creates a new authentication service
func NewAuthService(learnerRepo user.LearnerRepository, credentials CredentialValidator, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AuthService {
	return &AuthService{
		learnerRepo: learnerRepo,
		credentials: credentials,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// AuthResult holds authentication result data
type AuthResult struct {
	Token   string        `json:"token,omitempty"`
	Profile *user.Profile `json:"profile,omitempty"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
}

// RegisterRequest carries a new account signup.
type RegisterRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Timezone    string `json:"timezone"`
}

// Register creates a learner account and issues a session token.
func (a *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResult, error) {
	marker := a.perfTracker.StartOperation("auth:register", "")
	defer marker.Complete()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", rewards.ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", rewards.ErrValidation)
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", rewards.ErrValidation, req.Timezone)
	}

	if existing, err := a.learnerRepo.FindByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", rewards.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	learner := &user.Learner{
		ID:           security.GenerateULID(),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Email:        email,
		PasswordHash: string(hash),
		Timezone:     timezone,
	}
	if learner.DisplayName == "" {
		learner.DisplayName = strings.SplitN(email, "@", 2)[0]
	}
	if err := a.learnerRepo.Store(ctx, learner); err != nil {
		return nil, fmt.Errorf("failed to store learner: %w", err)
	}

	a.logger.LogAuthOperation("register", learner.ID, true, map[string]any{"timezone": timezone})
	return a.issueToken(learner)
}

// Login validates credentials and issues a session token.
func (a *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	marker := a.perfTracker.StartOperation("auth:login", "")
	defer marker.Complete()

	learner, err := a.credentials.ValidateCredentials(ctx, strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil || learner == nil {
		a.logger.LogAuthOperation("login", "", false, map[string]any{"email": email})
		return &AuthResult{Success: false, Error: "invalid credentials"}, nil
	}

	a.logger.LogAuthOperation("login", learner.ID, true, nil)
	return a.issueToken(learner)
}

// DecodeSessionToken validates a JWT and returns the embedded profile, or
// ErrSessionExpired when the token is no longer acceptable.
func (a *AuthService) DecodeSessionToken(tokenString string) (*user.Profile, error) {
	if tokenString == "" {
		return nil, rewards.ErrSessionExpired
	}
	claims, err := security.ValidateJWT(tokenString, config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rewards.ErrSessionExpired, err)
	}
	profile := security.GetProfileFromClaims(claims)
	if profile == nil {
		return nil, rewards.ErrSessionExpired
	}
	return profile, nil
}

// DecodeRefreshToken validates a token for the refresh endpoint. Unlike
// DecodeSessionToken it accepts a token past its expiry, so long as the
// signature checks out and the expiry is within the refresh grace window.
func (a *AuthService) DecodeRefreshToken(tokenString string) (*user.Profile, error) {
	if tokenString == "" {
		return nil, rewards.ErrSessionExpired
	}
	claims, err := security.ValidateJWTIgnoringExpiry(tokenString, config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rewards.ErrSessionExpired, err)
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, rewards.ErrSessionExpired
	}
	expiredAt := time.Unix(int64(exp), 0)
	if time.Now().UTC().After(expiredAt.Add(config.SessionRefreshGrace)) {
		return nil, fmt.Errorf("%w: token past refresh grace", rewards.ErrSessionExpired)
	}
	profile := security.GetProfileFromClaims(claims)
	if profile == nil {
		return nil, rewards.ErrSessionExpired
	}
	return profile, nil
}

// RefreshToken performs the single refresh-and-retry allowed on an expired
// session: the learner is re-read and a fresh token issued.
func (a *AuthService) RefreshToken(ctx context.Context, userID string) (*AuthResult, error) {
	learner, err := a.learnerRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rewards.ErrSessionExpired, err)
	}
	a.logger.LogAuthOperation("refresh", userID, true, nil)
	return a.issueToken(learner)
}

func (a *AuthService) issueToken(learner *user.Learner) (*AuthResult, error) {
	profile := &user.Profile{
		UserID:      learner.ID,
		DisplayName: learner.DisplayName,
		Email:       learner.Email,
		Timezone:    learner.Timezone,
	}
	token, err := security.GenerateSessionToken(profile, config.JWTSecret, config.AESKey)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}
	return &AuthResult{Token: token, Profile: profile, Success: true}, nil
}
