package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"sdq-screen/internal/domain"
)

// Implementaciones en memoria de los repositorios. Se usan cuando no hay
// DATABASE_URL y en los tests. Devuelven pgx.ErrNoRows igual que las Pg.

type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]domain.User)}
}

func (m *MemoryUserRepository) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return ErrConflict
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *MemoryUserRepository) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *MemoryUserRepository) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

type MemorySubjectRepository struct {
	mu       sync.RWMutex
	subjects map[string]domain.Subject
}

func NewMemorySubjectRepository() *MemorySubjectRepository {
	return &MemorySubjectRepository{subjects: make(map[string]domain.Subject)}
}

func (m *MemorySubjectRepository) Create(_ context.Context, subject domain.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subjects {
		if s.ID == subject.ID || s.SharingCode == subject.SharingCode {
			return ErrConflict
		}
	}
	m.subjects[subject.ID] = subject
	return nil
}

func (m *MemorySubjectRepository) GetByID(_ context.Context, id string) (domain.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return domain.Subject{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *MemorySubjectRepository) GetBySharingCode(_ context.Context, code string) (domain.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subjects {
		if s.SharingCode == code {
			return s, nil
		}
	}
	return domain.Subject{}, pgx.ErrNoRows
}

type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.RespondentSession
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]domain.RespondentSession)}
}

func (m *MemorySessionRepository) Create(_ context.Context, session domain.RespondentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return ErrConflict
	}
	for _, s := range m.sessions {
		if s.SubjectID == session.SubjectID && s.Role == session.Role && s.Active() {
			return ErrConflict
		}
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemorySessionRepository) GetByID(_ context.Context, id string) (domain.RespondentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.RespondentSession{}, pgx.ErrNoRows
	}
	return s.Clone(), nil
}

func (m *MemorySessionRepository) FindActive(_ context.Context, subjectID string, role domain.Role) (domain.RespondentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.SubjectID == subjectID && s.Role == role && s.Active() {
			return s.Clone(), nil
		}
	}
	return domain.RespondentSession{}, pgx.ErrNoRows
}

func (m *MemorySessionRepository) LatestSubmitted(_ context.Context, subjectID, respondentID string) (domain.RespondentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		latest domain.RespondentSession
		found  bool
	)
	for _, s := range m.sessions {
		if s.SubjectID != subjectID || s.RespondentID != respondentID || !s.Submitted() {
			continue
		}
		if !found || s.SubmittedAt.After(*latest.SubmittedAt) {
			latest, found = s, true
		}
	}
	if !found {
		return domain.RespondentSession{}, pgx.ErrNoRows
	}
	return latest.Clone(), nil
}

func (m *MemorySessionRepository) Update(_ context.Context, session domain.RespondentSession, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[session.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	stored := session.Clone()
	stored.Version = expectedVersion + 1
	m.sessions[session.ID] = stored
	return nil
}

type MemoryReviewRepository struct {
	mu      sync.Mutex
	records map[string]domain.ReviewRecord
}

func NewMemoryReviewRepository() *MemoryReviewRepository {
	return &MemoryReviewRepository{records: make(map[string]domain.ReviewRecord)}
}

func (m *MemoryReviewRepository) Attach(_ context.Context, subjectID string, role domain.Role, entry domain.ReviewEntry, now time.Time) (domain.ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[subjectID]
	if !ok {
		rec = domain.NewReviewRecord(subjectID, now)
	} else {
		rec = rec.Clone()
	}
	rec.Attach(role, entry.SessionID, entry.SubmittedAt, now)
	m.records[subjectID] = rec
	return rec.Clone(), nil
}

func (m *MemoryReviewRepository) Get(_ context.Context, subjectID string) (domain.ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[subjectID]
	if !ok {
		return domain.ReviewRecord{}, pgx.ErrNoRows
	}
	return rec.Clone(), nil
}

func (m *MemoryReviewRepository) Update(_ context.Context, record domain.ReviewRecord, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[record.SubjectID]
	if !ok {
		return pgx.ErrNoRows
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	stored := record.Clone()
	// Las entradas por rol solo cambian via Attach.
	stored.Sessions = current.Clone().Sessions
	stored.Version = expectedVersion + 1
	m.records[record.SubjectID] = stored
	return nil
}

func (m *MemoryReviewRepository) List(_ context.Context) ([]domain.ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ReviewRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].SubjectID < out[j].SubjectID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

type MemoryTranscriptRepository struct {
	mu      sync.RWMutex
	entries []domain.TranscriptEmbedding
}

func NewMemoryTranscriptRepository() *MemoryTranscriptRepository {
	return &MemoryTranscriptRepository{}
}

func (m *MemoryTranscriptRepository) Create(_ context.Context, e domain.TranscriptEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// Search ordena por distancia coseno, igual que el operador <=> de pgvector.
func (m *MemoryTranscriptRepository) Search(_ context.Context, subjectID string, queryEmbedding pgvector.Vector, k int) ([]domain.TranscriptEmbedding, error) {
	if k <= 0 {
		k = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	type scored struct {
		e    domain.TranscriptEmbedding
		dist float64
	}
	var candidates []scored
	query := queryEmbedding.Slice()
	for _, e := range m.entries {
		if e.SubjectID != subjectID {
			continue
		}
		candidates = append(candidates, scored{e: e, dist: cosineDistance(query, e.Embedding.Slice())})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]domain.TranscriptEmbedding, len(candidates))
	for i, c := range candidates {
		out[i] = c.e
	}
	return out, nil
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
