package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/problem-bridge/internal/config"
)

// clockSkew is tolerated between the course backend issuing a token and this
// host validating it.
const clockSkew = 30 * time.Second

var ErrNoUser = errors.New("token has no user")

// Claims identify the user a bridge session acts for. Raw is the token as
// received; it is forwarded to the course backend unchanged.
type Claims struct {
	jwt.RegisteredClaims
	UserID int `json:"user_id,omitempty"`

	Raw string `json:"-"`
}

// AuthService validates tokens issued by the course backend with a shared
// HMAC secret.
type AuthService struct {
	secret []byte
	expiry time.Duration
	parser *jwt.Parser
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{
		secret: []byte(cfg.JWTSecret),
		expiry: cfg.JWTExpiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(clockSkew),
			jwt.WithIssuedAt(),
		),
	}
}

// GenerateToken signs a token for userID. Tooling and tests use it; production
// tokens come from the course backend.
func (s *AuthService) GenerateToken(userID int) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies tokenStr and returns its claims. Tokens without a
// user_id claim fall back to a numeric subject.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, err := s.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if claims.UserID <= 0 {
		if id, err := strconv.Atoi(claims.Subject); err == nil {
			claims.UserID = id
		}
	}
	if claims.UserID <= 0 {
		return nil, ErrNoUser
	}

	claims.Raw = tokenStr
	return claims, nil
}
