package services

import (
	"context"
	"fmt"
	"testing"

	"docqa/internal/apperr"
	"docqa/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestQAService_AskRecordsSession(t *testing.T) {
	h := newHarness(t)
	svc := NewQAService(h.rag, h.sessions, zaptest.NewLogger(t), nil)
	doc := h.ingest(t, "France", "Paris is the capital of France.")

	session, err := svc.Ask(context.Background(), "u1", "What is the capital of France?", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "Paris.", session.Answer)
	assert.Equal(t, []string{doc.ID}, []string(session.RelevantDocumentIDs))
	assert.Greater(t, session.Confidence, 0.0)

	stored, err := svc.Session(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Question, stored.Question)
}

func TestQAService_AskValidation(t *testing.T) {
	h := newHarness(t)
	svc := NewQAService(h.rag, h.sessions, nil, nil)

	_, err := svc.Ask(context.Background(), "u1", "  ", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Ask(context.Background(), "", "question?", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	count, err := h.sessions.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestQAService_History(t *testing.T) {
	h := newHarness(t)
	svc := NewQAService(h.rag, h.sessions, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Ask(ctx, "u1", fmt.Sprintf("question %d?", i), nil)
		require.NoError(t, err)
	}
	_, err := svc.Ask(ctx, "u2", "other?", nil)
	require.NoError(t, err)

	sessions, page, err := svc.History(ctx, "u1", 1, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "question 2?", sessions[0].Question)
	assert.Equal(t, models.Pagination{Page: 1, Limit: 2, Total: 3, Pages: 2}, page)

	sessions, page, err = svc.History(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, 1, page.Page)

	_, _, err = svc.History(ctx, "", 1, 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Session(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
