package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"ashkicharm/backend/internal/domain"
)

const (
	tokenIssuer  = "ashkicharm"
	tokenSubject = "operator"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager gates the API behind a single shared passphrase and hands out
// short-lived HS256 bearer tokens.
type AuthManager struct {
	secret     []byte
	tokenTTL   time.Duration
	passphrase string
}

func NewAuthManager(secret string, tokenTTL time.Duration, passphrase string) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	passphrase = strings.TrimSpace(passphrase)
	hashed := ""
	if passphrase != "" {
		if h, err := hashPassword(passphrase); err == nil {
			hashed = h
		}
	}

	return &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		passphrase: hashed,
	}
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	if !verifyPassword(a.passphrase, strings.TrimSpace(req.Passphrase)) {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(tokenSubject, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Subject: sub}, nil
}

func (a *AuthManager) sign(subject string, expiresAt time.Time) (string, error) {
	claims := jwtlib.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		Issuer:    tokenIssuer,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || input == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
