package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/llm"
	"sdq-screen/internal/repository"
)

var ErrSearchUnavailable = errors.New("transcript search not configured")

// TranscriptIndexer guarda embeddings del texto libre de los respondentes
// para que el profesional pueda buscar por significado.
type TranscriptIndexer struct {
	logger   *zap.Logger
	embedder llm.Embedder
	repo     repository.TranscriptRepository
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewTranscriptIndexer(logger *zap.Logger, embedder llm.Embedder, repo repository.TranscriptRepository) *TranscriptIndexer {
	if embedder == nil || repo == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptIndexer{logger: logger, embedder: embedder, repo: repo, timeout: 10 * time.Second}
}

// IndexAsync indexa en segundo plano; un fallo solo se loguea.
func (t *TranscriptIndexer) IndexAsync(session domain.RespondentSession, questionIndex int, content string) {
	if t == nil || strings.TrimSpace(content) == "" {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.Index(ctx, session, questionIndex, content); err != nil {
			t.logger.Warn("transcript indexing failed",
				zap.String("session_id", session.ID),
				zap.Int("question_index", questionIndex),
				zap.Error(err),
			)
		}
	}()
}

func (t *TranscriptIndexer) Index(ctx context.Context, session domain.RespondentSession, questionIndex int, content string) error {
	vec, err := t.embedder.Embed(ctx, content)
	if err != nil {
		return err
	}
	return t.repo.Create(ctx, domain.TranscriptEmbedding{
		ID:            uuid.New(),
		SessionID:     session.ID,
		SubjectID:     session.SubjectID,
		Role:          session.Role,
		QuestionIndex: questionIndex,
		Content:       content,
		Embedding:     pgvector.NewVector(vec),
		CreatedAt:     time.Now().UTC(),
	})
}

func (t *TranscriptIndexer) Search(ctx context.Context, subjectID, query string, k int) ([]domain.TranscriptEmbedding, error) {
	if t == nil {
		return nil, ErrSearchUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	vec, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return t.repo.Search(ctx, subjectID, pgvector.NewVector(vec), k)
}

// Wait espera las indexaciones en curso; se usa al apagar y en tests.
func (t *TranscriptIndexer) Wait() {
	if t == nil {
		return
	}
	t.wg.Wait()
}
