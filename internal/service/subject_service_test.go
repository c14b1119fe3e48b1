package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/repository"
	"sdq-screen/internal/sdq"
)

func newSubjectService(t *testing.T) *SubjectService {
	t.Helper()
	svc, err := NewSubjectService(zap.NewNop(), repository.NewMemorySubjectRepository(), sdq.DefaultCatalog(), "test-salt")
	if err != nil {
		t.Fatalf("new subject service: %v", err)
	}
	return svc
}

func TestSubjectServiceRegisterAndLookup(t *testing.T) {
	svc := newSubjectService(t)
	subject, err := svc.Register(context.Background(), RegisterSubjectInput{Name: " Sam ", Age: 9, CreatedBy: "u1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if subject.Name != "Sam" || subject.ID == "" {
		t.Fatalf("unexpected subject: %+v", subject)
	}
	if len(subject.SharingCode) < 6 || strings.ContainsAny(subject.SharingCode, "01IO") {
		t.Fatalf("unexpected sharing code %q", subject.SharingCode)
	}

	got, err := svc.LookupByCode(context.Background(), strings.ToLower(subject.SharingCode))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != subject.ID {
		t.Fatalf("expected %s, got %s", subject.ID, got.ID)
	}
	if _, err := svc.LookupByCode(context.Background(), "ZZZZZZ"); !errors.Is(err, domain.ErrInvalidSubject) {
		t.Fatalf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestSubjectServiceRegisterValidation(t *testing.T) {
	svc := newSubjectService(t)
	cases := []RegisterSubjectInput{
		{Name: "", Age: 9},
		{Name: "Tiny", Age: 1},
		{Name: "Adult", Age: 18},
	}
	for _, in := range cases {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, domain.ErrInvalidSubject) {
			t.Fatalf("expected ErrInvalidSubject for %+v, got %v", in, err)
		}
	}
}

type conflictingSubjectRepo struct {
	*repository.MemorySubjectRepository
	failures int
}

func (c *conflictingSubjectRepo) Create(ctx context.Context, s domain.Subject) error {
	if c.failures > 0 {
		c.failures--
		return repository.ErrConflict
	}
	return c.MemorySubjectRepository.Create(ctx, s)
}

func TestSubjectServiceRetriesCodeCollision(t *testing.T) {
	repo := &conflictingSubjectRepo{MemorySubjectRepository: repository.NewMemorySubjectRepository(), failures: 2}
	svc, err := NewSubjectService(zap.NewNop(), repo, sdq.DefaultCatalog(), "salt")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := svc.Register(context.Background(), RegisterSubjectInput{Name: "Sam", Age: 5}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}

	repo.failures = 3
	if _, err := svc.Register(context.Background(), RegisterSubjectInput{Name: "Sam", Age: 5}); !errors.Is(err, ErrSharingCode) {
		t.Fatalf("expected ErrSharingCode, got %v", err)
	}
}
