package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/service"
	"tillbook/backend/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

var errInvalidToken = errors.New("invalid or expired token")

type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
}

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type tillClaims struct {
	jwtlib.RegisteredClaims
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	user, err := a.userStore.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}

	if !isPasswordHash(user.Password) {
		// Accounts created before passwords were hashed are upgraded on their
		// first successful login.
		if subtle.ConstantTimeCompare([]byte(user.Password), []byte(req.Password)) != 1 {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		hashed, err := HashPassword(req.Password)
		if err == nil {
			if err := a.userStore.UpdateUserPassword(ctx, user.Username, hashed); err != nil {
				log.Printf("[auth] WARN: upgrade password hash for %s: %v", user.Username, err)
			}
		}
	} else if !verifyPassword(user.Password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		ID:          user.ID,
		Role:        user.Role,
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &tillClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(user *domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := tillClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "tillbook",
		},
		UserID: user.ID,
		Role:   user.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// CreateUser adds a till or admin account. Only admins may call it.
func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	actor, ok := service.ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.UserAccount{}, service.ErrForbidden
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.UserAccount{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrInvalidInput)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserAccount{}, fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidInput)
	}
	if len(req.Password) < 6 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleCashier
	}
	if role != domain.RoleCashier && role != domain.RoleAdmin {
		return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, req.Role)
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("failed to hash password")
	}

	created, err := a.userStore.CreateUser(ctx, domain.UserAccount{
		Username:  username,
		Password:  passwordHash,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.UserAccount{}, err
	}
	log.Printf("[audit] %s user.create username=%s role=%s", actor.Username, username, role)
	return *created, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
