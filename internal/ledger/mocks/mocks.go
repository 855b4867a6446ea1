// Package mocks provides testify mocks for the ledger repositories.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tomliptrot/handwriting-app/internal/ledger"
)

// WorkerRepository is a mock for ledger.WorkerRepository.
type WorkerRepository struct {
	mock.Mock
}

func (m *WorkerRepository) Upsert(ctx context.Context, workerID string, seenAt time.Time) error {
	args := m.Called(ctx, workerID, seenAt)
	return args.Error(0)
}

func (m *WorkerRepository) Get(ctx context.Context, workerID string) (*ledger.Worker, error) {
	args := m.Called(ctx, workerID)
	if w, ok := args.Get(0).(*ledger.Worker); ok {
		return w, args.Error(1)
	}
	return nil, args.Error(1)
}

// SessionRepository is a mock for ledger.SessionRepository.
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) Insert(ctx context.Context, rec ledger.SessionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *SessionRepository) UpdateCounters(ctx context.Context, sessionID string, completedImages int, lastActivity time.Time) error {
	args := m.Called(ctx, sessionID, completedImages, lastActivity)
	return args.Error(0)
}

func (m *SessionRepository) Complete(ctx context.Context, sessionID string, completedImages, skippedCodes, durationSeconds int, completedAt time.Time) error {
	args := m.Called(ctx, sessionID, completedImages, skippedCodes, durationSeconds, completedAt)
	return args.Error(0)
}

// CodeRepository is a mock for ledger.CodeRepository.
type CodeRepository struct {
	mock.Mock
}

func (m *CodeRepository) InsertGenerated(ctx context.Context, rec ledger.CodeRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *CodeRepository) MarkCompleted(ctx context.Context, sessionID, codeValue, filename, storageKey string, completedAt time.Time) error {
	args := m.Called(ctx, sessionID, codeValue, filename, storageKey, completedAt)
	return args.Error(0)
}

func (m *CodeRepository) MarkSkipped(ctx context.Context, sessionID, codeValue string, skippedAt time.Time) error {
	args := m.Called(ctx, sessionID, codeValue, skippedAt)
	return args.Error(0)
}
