package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	hashids "github.com/speps/go-hashids"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/repository"
	"sdq-screen/internal/sdq"
)

// sharingAlphabet evita caracteres ambiguos al dictar el codigo.
const sharingAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var ErrSharingCode = errors.New("could not generate sharing code")

// SubjectService registra sujetos y resuelve codigos para compartir.
type SubjectService struct {
	logger   *zap.Logger
	subjects repository.SubjectRepository
	catalog  *sdq.Catalog
	codes    *hashids.HashID
	now      func() time.Time
}

func NewSubjectService(logger *zap.Logger, subjects repository.SubjectRepository, catalog *sdq.Catalog, salt string) (*SubjectService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 6
	hd.Alphabet = sharingAlphabet
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("hashids: %w", err)
	}
	return &SubjectService{
		logger:   logger,
		subjects: subjects,
		catalog:  catalog,
		codes:    h,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

type RegisterSubjectInput struct {
	Name      string
	Age       int
	Gender    string
	CreatedBy string
}

func (s *SubjectService) Register(ctx context.Context, input RegisterSubjectInput) (domain.Subject, error) {
	if s == nil || s.subjects == nil {
		return domain.Subject{}, errors.New("subject service not configured")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.Subject{}, fmt.Errorf("%w: name is required", domain.ErrInvalidSubject)
	}
	if _, err := s.catalog.BandForAge(input.Age); err != nil {
		return domain.Subject{}, fmt.Errorf("%w: %v", domain.ErrInvalidSubject, err)
	}

	subject := domain.Subject{
		ID:        uuid.NewString(),
		Name:      name,
		Age:       input.Age,
		Gender:    strings.TrimSpace(input.Gender),
		CreatedBy: input.CreatedBy,
		CreatedAt: s.now(),
	}
	for attempt := 0; attempt < 3; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return domain.Subject{}, err
		}
		subject.SharingCode = code
		err = s.subjects.Create(ctx, subject)
		if err == nil {
			s.logger.Info("subject registered", zap.String("subject_id", subject.ID), zap.Int("age", subject.Age))
			return subject, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return domain.Subject{}, err
		}
	}
	return domain.Subject{}, ErrSharingCode
}

func (s *SubjectService) Get(ctx context.Context, id string) (domain.Subject, error) {
	subject, err := s.subjects.GetByID(ctx, strings.TrimSpace(id))
	if repository.IsNotFound(err) {
		return domain.Subject{}, domain.ErrInvalidSubject
	}
	return subject, err
}

func (s *SubjectService) LookupByCode(ctx context.Context, code string) (domain.Subject, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Subject{}, domain.ErrInvalidSubject
	}
	subject, err := s.subjects.GetBySharingCode(ctx, code)
	if repository.IsNotFound(err) {
		return domain.Subject{}, domain.ErrInvalidSubject
	}
	return subject, err
}

func (s *SubjectService) newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<40))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSharingCode, err)
	}
	code, err := s.codes.EncodeInt64([]int64{n.Int64()})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSharingCode, err)
	}
	return code, nil
}
