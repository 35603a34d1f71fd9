package auth

import (
	"errors"
	"fmt"
)

// ErrBadCredentials is returned when login fails.
var ErrBadCredentials = errors.New("invalid username or password")

// Service authenticates the single configured admin user and issues tokens.
type Service struct {
	username     string
	passwordHash string
	jwtManager   *JWTManager
}

// NewService creates an auth service. password may be a plain value from
// configuration, in which case it is hashed on startup.
func NewService(username, password string, jwtManager *JWTManager) (*Service, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("admin credentials must be configured")
	}

	hash := password
	if !isBcryptHash(password) {
		var err error
		hash, err = HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash admin password: %w", err)
		}
	}

	return &Service{
		username:     username,
		passwordHash: hash,
		jwtManager:   jwtManager,
	}, nil
}

// Login verifies credentials and returns a signed access token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.username || !VerifyPassword(password, s.passwordHash) {
		return "", ErrBadCredentials
	}
	return s.jwtManager.GenerateToken(username)
}

// TokenDuration returns the token lifetime in seconds.
func (s *Service) TokenDuration() int64 {
	return s.jwtManager.TokenDuration()
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (s[:4] == "$2a$" || s[:4] == "$2b$" || s[:4] == "$2y$")
}
