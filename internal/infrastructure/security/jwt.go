// Package security provides JWT token utilities
package security

import (
	"errors"
	"log"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/user"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
	"github.com/golang-jwt/jwt/v4"
)

// ValidateJWT validates a JWT token and returns the claims
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// ValidateJWTIgnoringExpiry checks the token signature but skips claim
// validation, so an expired token still yields its claims. The caller is
// responsible for bounding how stale the token may be.
func ValidateJWTIgnoringExpiry(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GetProfileFromClaims extracts a learner profile from JWT claims
func GetProfileFromClaims(claims jwt.MapClaims) *user.Profile {
	if profileData, ok := claims["profile"].(map[string]any); ok {
		userID, _ := claims["sub"].(string)
		displayName, _ := profileData["displayName"].(string)
		email, _ := profileData["email"].(string)
		timezone, _ := profileData["timezone"].(string)
		if userID == "" {
			return nil
		}
		return &user.Profile{
			UserID:      userID,
			DisplayName: displayName,
			Email:       email,
			Timezone:    timezone,
		}
	}
	return nil
}

// GenerateSessionToken creates a JWT token for a signed-in learner
func GenerateSessionToken(profile *user.Profile, jwtSecret, aesKey string) (string, error) {
	sessionULID := GenerateULID()
	encryptedSession, err := Encrypt(sessionULID, aesKey)
	if err != nil {
		log.Printf("ERROR: Failed to encrypt session id in GenerateSessionToken: %v", err)
		return "", err
	}

	claims := jwt.MapClaims{
		"sub": profile.UserID,
		"profile": map[string]string{
			"displayName": profile.DisplayName,
			"email":       profile.Email,
			"timezone":    profile.Timezone,
		},
		"encryptedSession": encryptedSession,
		"iat":              time.Now().UTC().Unix(),
		"exp":              time.Now().UTC().Add(config.SessionTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	result, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		log.Printf("ERROR: Failed to sign JWT token: %v", err)
		return "", err
	}

	return result, nil
}
