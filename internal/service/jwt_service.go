package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sdq-screen/internal/domain"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
	tokenIssuer  = "sdq-screen"
)

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
	// ErrJWTNotConfigured se devuelve al emitir tokens sin JWT_SECRET.
	ErrJWTNotConfigured = errors.New("jwt secret not configured")
)

// JWTService emite el par access/refresh de respondentes y revisores. Los
// refresh son de un solo uso: cada rotacion revoca el jti anterior.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshTokenStore
	now        func() time.Time
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims lleva el rol de cuenta para que las rutas de revision no consulten la base.
type Claims struct {
	UserID      string             `json:"uid"`
	Email       string             `json:"email"`
	DisplayName string             `json:"display_name,omitempty"`
	AccountRole domain.AccountRole `json:"role"`
	TokenType   string             `json:"typ"`
	jwt.RegisteredClaims
}

func (c Claims) user() domain.User {
	return domain.User{
		ID:          c.UserID,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		AccountRole: c.AccountRole,
	}
}

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return NewJWTServiceWithStore(secret, accessTTL, refreshTTL, nil)
}

func NewJWTServiceWithStore(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *JWTService) GeneratePair(user domain.User) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrJWTNotConfigured
	}
	now := s.now()
	access, err := s.sign(user, now, tokenAccess, "")
	if err != nil {
		return TokenPair{}, err
	}
	jti := uuid.NewString()
	refresh, err := s.sign(user, now, tokenRefresh, jti)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Store(jti, user.ID, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// RefreshPair consume el refresh token y emite un par nuevo con los mismos datos.
func (s *JWTService) RefreshPair(refreshToken string) (TokenPair, error) {
	claims, err := s.verify(refreshToken, tokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	ok, err := s.store.Exists(claims.ID)
	if err != nil || !ok {
		return TokenPair{}, ErrJWTInvalid
	}
	if err := s.store.Revoke(claims.ID); err != nil {
		return TokenPair{}, ErrJWTInvalid
	}
	return s.GeneratePair(claims.user())
}

func (s *JWTService) RevokeRefresh(refreshToken string) error {
	claims, err := s.verify(refreshToken, tokenRefresh)
	if err != nil {
		return err
	}
	return s.store.Revoke(claims.ID)
}

func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	return s.verify(accessToken, tokenAccess)
}

func (s *JWTService) sign(user domain.User, now time.Time, kind, jti string) (string, error) {
	ttl := s.accessTTL
	if kind == tokenRefresh {
		ttl = s.refreshTTL
	}
	role := user.AccountRole
	if !role.Valid() {
		role = domain.AccountRespondent
	}
	claims := Claims{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		AccountRole: role,
		TokenType:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// verify parsea el token y exige tipo, emisor y sujeto coherentes. Un
// refresh sin jti no se puede revocar y se rechaza.
func (s *JWTService) verify(token, kind string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(token) == "" {
		return Claims{}, ErrJWTInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrJWTExpired
	case err != nil:
		return Claims{}, ErrJWTInvalid
	}
	if claims.TokenType != kind || strings.TrimSpace(claims.UserID) == "" || claims.Subject != claims.UserID {
		return Claims{}, ErrJWTInvalid
	}
	if kind == tokenRefresh && claims.ID == "" {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}
