package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/repository"
)

// UserService coordina reglas de negocio para usuarios.
type UserService struct {
	logger    *zap.Logger
	users     repository.UserRepository
	reviewers map[string]bool
}

// NewUserService crea el servicio. Los emails de reviewerEmails reciben el
// rol reviewer al registrarse.
func NewUserService(logger *zap.Logger, users repository.UserRepository, reviewerEmails ...string) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	reviewers := make(map[string]bool, len(reviewerEmails))
	for _, e := range reviewerEmails {
		if e = normalizeEmail(e); e != "" {
			reviewers[e] = true
		}
	}
	return &UserService{
		logger:    logger,
		users:     users,
		reviewers: reviewers,
	}
}

type CreateUserInput struct {
	Email       string
	DisplayName string
	Password    string
	AccountRole domain.AccountRole
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must have at least 8 characters")
)

const minPasswordLength = 8

func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	email := normalizeEmail(input.Email)
	if email == "" {
		return domain.User{}, ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, ErrInvalidEmail
	}
	password := strings.TrimSpace(input.Password)
	if len(password) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}
	role := input.AccountRole
	if role == "" {
		role = domain.AccountRespondent
		if s.reviewers[email] {
			role = domain.AccountReviewer
		}
	}
	if !role.Valid() {
		return domain.User{}, errors.New("invalid account role")
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		AccountRole:  role,
		PasswordHash: string(hashBytes),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, err
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("account_role", string(role)))
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ErrUserNotFound
	}
	return user, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
