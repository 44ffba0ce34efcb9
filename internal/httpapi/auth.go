package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"warungrekap/internal/domain"
	"warungrekap/internal/store"
)

// UserStore is the external credential collaborator: it maps a login handle
// to a tenant handle. The core ledger never sees it.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	FindUser(ctx context.Context, username string) (domain.UserAccount, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
}

type ledgerClaims struct {
	jwtlib.RegisteredClaims
	Tenant string `json:"tenant"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
	}
}

// Register creates an account and its tenant handle (the normalized
// username), then logs the new account straight in.
func (a *AuthManager) Register(ctx context.Context, req RegisterRequest) (domain.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return domain.LoginResponse{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if req.Password != req.ConfirmPassword {
		return domain.LoginResponse{}, fmt.Errorf("%w: confirm password does not match", store.ErrInvalidInput)
	}

	tenant, err := store.NormalizeTenant(username)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("%w: username must contain letters or digits", store.ErrInvalidInput)
	}
	// The tenant handle IS the username. A username that normalization would
	// rewrite ("warung!!" -> "warung") could collide with another account's
	// tenant and open its ledger, so only already-normalized handles are
	// accepted.
	if tenant != username {
		return domain.LoginResponse{}, fmt.Errorf("%w: username may only contain lowercase letters and digits", store.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	err = a.users.CreateUser(ctx, domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Tenant:    tenant,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return a.issue(username, tenant)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	user, err := a.users.FindUser(ctx, username)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	return a.issue(user.Username, user.Tenant)
}

func (a *AuthManager) issue(username, tenant string) (domain.LoginResponse, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, tenant, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Tenant:      tenant,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &ledgerClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.Tenant == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Tenant: claims.Tenant}, nil
}

func (a *AuthManager) sign(username, tenant string, expiresAt time.Time) (string, error) {
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "warungrekap",
		},
		Tenant: tenant,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
