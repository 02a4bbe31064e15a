// Package auth guards the flow management API with HS256 bearer tokens.
package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/golang-jwt/jwt/v5"
)

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeUnauthorized          = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Missing bearer token")
	CodeTokenValidationFailed = ErrRegistry.Register("TOKEN_VALIDATION_FAILED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid token")
)

func ErrUnauthorized() *errx.Error {
	return ErrRegistry.New(CodeUnauthorized)
}

func ErrTokenValidationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenValidationFailed)
}

// JWTService signs and validates management API tokens.
type JWTService struct {
	secretKey []byte
	issuer    string
}

func NewJWTService(cfg config.AuthConfig) *JWTService {
	return &JWTService{
		secretKey: []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
	}
}

// GenerateToken issues a token for subject valid for ttl.
func (j *JWTService) GenerateToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    j.issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", errx.Wrap(err, "failed to sign token", errx.TypeInternal)
	}
	return signed, nil
}

// ValidateToken checks signature, expiry and, when configured, the issuer.
func (j *JWTService) ValidateToken(tokenString string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, ErrTokenValidationFailed().WithDetail("error", err.Error())
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenValidationFailed().WithDetail("error", "token is invalid")
	}
	return claims, nil
}
