package voicecast

import (
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	tokenExpiryMs      = 10 * 60 * 1000
	apiKeyMinLength    = 32
	apiKeyPrefix       = "vcast_"
	apiKeyEnvVar       = "VOICECAST_API_KEY"
	truncatedKeyLength = 8
)

// WSToken is a short-lived bearer token for the websocket endpoint.
type WSToken struct {
	Token     string
	ExpiresAt int64 // unix millis
}

// ValidatedAPIKey is an API key that passed the format check.
type ValidatedAPIKey string

func ValidateAPIKeyFormat(apiKey string) (ValidatedAPIKey, error) {
	if len(apiKey) >= apiKeyMinLength && strings.HasPrefix(apiKey, apiKeyPrefix) {
		return ValidatedAPIKey(apiKey), nil
	}
	return "", NewAuthError("invalid API key format")
}

func GetAPIKey() (string, error) {
	if apiKey := os.Getenv(apiKeyEnvVar); apiKey != "" {
		return apiKey, nil
	}
	return "", NewAuthError(apiKeyEnvVar + " not set")
}

// GenerateWsTokenFromAPIKey signs a token carrying a truncated key
// reference and, optionally, the user id. The full key never leaves the
// process.
func GenerateWsTokenFromAPIKey(apiKey ValidatedAPIKey, userID string) (*WSToken, error) {
	expiresAt := time.Now().UnixMilli() + tokenExpiryMs

	claims := jwt.MapClaims{
		"apiKey": string(apiKey)[:truncatedKeyLength] + "...",
		"exp":    expiresAt / 1000, // JWT expects seconds
	}
	if userID != "" {
		claims["userId"] = userID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(apiKey))
	if err != nil {
		return nil, WrapError(err, ErrCodeAuthFailed)
	}

	return &WSToken{Token: tokenString, ExpiresAt: expiresAt}, nil
}

// GenerateWsToken reads the API key from the environment and signs a
// token, optionally bound to a user id.
func GenerateWsToken(userID string) (*WSToken, error) {
	apiKey, err := GetAPIKey()
	if err != nil {
		return nil, err
	}
	validated, err := ValidateAPIKeyFormat(apiKey)
	if err != nil {
		return nil, err
	}
	return GenerateWsTokenFromAPIKey(validated, userID)
}

func IsTokenExpired(token *WSToken) bool {
	return time.Now().UnixMilli() > token.ExpiresAt
}

// TokenTTL returns the remaining token lifetime in seconds, never
// negative.
func TokenTTL(token *WSToken) int {
	ttl := (token.ExpiresAt - time.Now().UnixMilli()) / 1000
	if ttl < 0 {
		return 0
	}
	return int(ttl)
}

// DecodeWsToken verifies the token signature against the API key and
// returns its claims.
func DecodeWsToken(token string, apiKey string) (map[string]interface{}, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(apiKey), nil
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeTokenExpired)
	}

	if claims, ok := parsed.Claims.(jwt.MapClaims); ok && parsed.Valid {
		return map[string]interface{}(claims), nil
	}
	return nil, NewVoicecastError("invalid token", ErrCodeTokenExpired)
}
