package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/switchdesk-settlements-console/internal/clients/settlements"
	"github.com/switchdesk-settlements-console/internal/domain/archive"
	"github.com/switchdesk-settlements-console/internal/domain/audit"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/outbox"
	"github.com/switchdesk-settlements-console/internal/domain/report"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockSettlementGateway is a mock implementation of SettlementGateway
type MockSettlementGateway struct {
	mock.Mock
}

func (m *MockSettlementGateway) GetSettlement(ctx context.Context, id int64) (*settlement.Settlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Settlement), args.Error(1)
}

func (m *MockSettlementGateway) ListSettlements(ctx context.Context, filter settlements.ListFilter) ([]settlement.Settlement, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Settlement), args.Error(1)
}

func (m *MockSettlementGateway) CreateSettlement(ctx context.Context, reason string, windowIDs []int64) (*settlement.Settlement, error) {
	args := m.Called(ctx, reason, windowIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Settlement), args.Error(1)
}

func (m *MockSettlementGateway) ListWindows(ctx context.Context, state string) ([]settlement.Window, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Window), args.Error(1)
}

func (m *MockSettlementGateway) CloseWindow(ctx context.Context, windowID int64, reason string) (*settlement.Window, error) {
	args := m.Called(ctx, windowID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Window), args.Error(1)
}

// MockDataCollector is a mock implementation of DataCollector
type MockDataCollector struct {
	mock.Mock
}

func (m *MockDataCollector) Collect(ctx context.Context, rpt *report.Report, stl *settlement.Settlement) (*finalize.Data, error) {
	args := m.Called(ctx, rpt, stl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finalize.Data), args.Error(1)
}

// MockArchiveRepository is a mock implementation of archive.Repository
type MockArchiveRepository struct {
	mock.Mock
}

func (m *MockArchiveRepository) Save(ctx context.Context, doc *archive.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockArchiveRepository) GetByID(ctx context.Context, id uuid.UUID) (*archive.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*archive.Document), args.Error(1)
}

func (m *MockArchiveRepository) GetLatestBySettlementID(ctx context.Context, settlementID int64) (*archive.Document, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*archive.Document), args.Error(1)
}

func (m *MockArchiveRepository) GetBySettlementID(ctx context.Context, settlementID int64, limit, offset int) ([]*archive.Document, error) {
	args := m.Called(ctx, settlementID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*archive.Document), args.Error(1)
}

func (m *MockArchiveRepository) CountBySettlementID(ctx context.Context, settlementID int64) (int64, error) {
	args := m.Called(ctx, settlementID)
	return args.Get(0).(int64), args.Error(1)
}

// MockAttemptRepository is a mock implementation of audit.Repository
type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, attempt *audit.Attempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) Update(ctx context.Context, attempt *audit.Attempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*audit.Attempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Attempt), args.Error(1)
}

func (m *MockAttemptRepository) GetBySettlementID(ctx context.Context, settlementID int64, limit, offset int) ([]*audit.Attempt, error) {
	args := m.Called(ctx, settlementID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Attempt), args.Error(1)
}

func (m *MockAttemptRepository) CountBySettlementID(ctx context.Context, settlementID int64) (int64, error) {
	args := m.Called(ctx, settlementID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAttemptRepository) HasRunning(ctx context.Context, settlementID int64) (bool, error) {
	args := m.Called(ctx, settlementID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptRepository) WithTx(tx pgx.Tx) audit.Repository {
	m.Called(tx)
	return m
}

// MockOutboxRepository is a mock implementation of outbox.Repository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status outbox.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) (*outbox.Message, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	m.Called(tx)
	return m
}

// MockFinalizationEngine is a mock implementation of FinalizationEngine
type MockFinalizationEngine struct {
	mock.Mock
}

func (m *MockFinalizationEngine) ProcessFinalization(ctx context.Context, stl *settlement.Settlement, adjustments []finalize.Adjustment, opts finalize.Options) finalize.Result {
	args := m.Called(ctx, stl, adjustments, opts)
	return args.Get(0).(finalize.Result)
}

// MockTxRunner runs the transactional closure against a nil tx; the repo
// mocks accept it.
type MockTxRunner struct {
	mock.Mock
}

func (m *MockTxRunner) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(nil)
}
