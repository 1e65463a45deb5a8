package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/model"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("control password is not configured")
)

// ScopeOperator is the only token scope: full control of the enroller.
const ScopeOperator = "operator"

// Claims extends JWT standard claims with the token scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// AuthService checks the operator password and issues control tokens.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// Login checks password against CONTROL_PASSWORD_HASH and issues a token.
func (s *AuthService) Login(password string) (*model.LoginResponse, error) {
	if s.cfg.ControlPasswordHash == "" {
		return nil, ErrAuthDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.ControlPasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	token, expires, err := s.GenerateToken()
	if err != nil {
		return nil, err
	}
	return &model.LoginResponse{Token: token, ExpiresAt: expires}, nil
}

// GenerateToken signs an operator token valid for JWT_EXPIRY.
func (s *AuthService) GenerateToken() (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(s.cfg.JWTExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   ScopeOperator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Scope: ScopeOperator,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Scope != ScopeOperator {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
