package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/webhook"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Process(ctx context.Context) (webhook.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(webhook.Summary), args.Error(1)
}

func (m *MockRunner) Sweep(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockQueue) CountByStatus(ctx context.Context) (map[domain.QueueStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.QueueStatus]int64), args.Error(1)
}

func (m *MockQueue) GetByEventID(ctx context.Context, eventID string) (*domain.QueueEntry, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueueEntry), args.Error(1)
}

type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) DispatchedAt(ctx context.Context, key string) (time.Time, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

type recordingFeed struct {
	types []string
	data  []any
}

func (f *recordingFeed) Broadcast(eventType string, data any) {
	f.types = append(f.types, eventType)
	f.data = append(f.data, data)
}
