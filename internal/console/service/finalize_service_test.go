package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/switchdesk-settlements-console/internal/domain/archive"
	"github.com/switchdesk-settlements-console/internal/domain/audit"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/outbox"
	"github.com/switchdesk-settlements-console/internal/domain/report"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

type finalizeFixture struct {
	gateway     *MockSettlementGateway
	collector   *MockDataCollector
	engine      *MockFinalizationEngine
	archiveRepo *MockArchiveRepository
	attemptRepo *MockAttemptRepository
	outboxRepo  *MockOutboxRepository
	tx          *MockTxRunner
	svc         FinalizeService
}

func newFinalizeFixture() *finalizeFixture {
	f := &finalizeFixture{
		gateway:     new(MockSettlementGateway),
		collector:   new(MockDataCollector),
		engine:      new(MockFinalizationEngine),
		archiveRepo: new(MockArchiveRepository),
		attemptRepo: new(MockAttemptRepository),
		outboxRepo:  new(MockOutboxRepository),
		tx:          new(MockTxRunner),
	}
	f.svc = NewFinalizeService(newTestLogger(), f.gateway, f.collector, f.engine,
		f.archiveRepo, f.attemptRepo, f.outboxRepo, f.tx)
	return f
}

// validDocument is an archived report consistent with testFinalizeData.
func validDocument() *archive.Document {
	return &archive.Document{
		ID:           uuid.New(),
		SettlementID: 2766,
		FileName:     "report.xlsx",
		Entries: []report.Entry{{
			Participant:       report.Participant{ID: 11, Name: "payerfsp"},
			PositionAccountID: 21,
			Balance:           100,
			TransferAmount:    0,
		}},
	}
}

func TestFinalizeService_Finalize(t *testing.T) {
	f := newFinalizeFixture()
	stl := testSettlement(2766)
	doc := validDocument()
	opts := finalize.Options{AdjustNetDebitCap: false, AdjustLiquidity: true}

	f.attemptRepo.On("HasRunning", mock.Anything, int64(2766)).Return(false, nil)
	f.archiveRepo.On("GetLatestBySettlementID", mock.Anything, int64(2766)).Return(doc, nil)
	f.gateway.On("GetSettlement", mock.Anything, int64(2766)).Return(stl, nil)
	f.collector.On("Collect", mock.Anything, mock.Anything, stl).Return(testFinalizeData(stl), nil)

	var created *audit.Attempt
	f.attemptRepo.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*audit.Attempt)
		}).Return(nil)

	f.engine.On("ProcessFinalization", mock.Anything, stl, mock.Anything, opts).
		Return(finalize.Result{SettlementID: 2766, FinalState: settlement.StateSettled})

	f.tx.On("ExecuteTx", mock.Anything, mock.Anything).Return(nil)
	f.attemptRepo.On("WithTx", mock.Anything).Return()
	f.attemptRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.outboxRepo.On("WithTx", mock.Anything).Return()

	var msg *outbox.Message
	f.outboxRepo.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			msg = args.Get(1).(*outbox.Message)
		}).Return(nil)

	attempt, err := f.svc.Finalize(context.Background(), 2766, opts, "corr-1")
	require.NoError(t, err)

	assert.Same(t, created, attempt)
	assert.Equal(t, audit.AttemptStatusSucceeded, attempt.Status)
	assert.Equal(t, settlement.StatePsTransfersRecorded, attempt.FromState)
	assert.Equal(t, settlement.StateSettled, attempt.FinalState)
	assert.Empty(t, attempt.Errors)
	assert.True(t, attempt.AdjustLiquidity)
	assert.False(t, attempt.AdjustNetDebitCap)
	assert.Equal(t, "corr-1", attempt.CorrelationID)
	require.NotNil(t, attempt.CompletedAt)

	require.NotNil(t, msg)
	assert.Equal(t, attempt.ID, msg.EventID)
	assert.Equal(t, int64(2766), msg.SettlementID)
	assert.Equal(t, outbox.StatusPending, msg.Status)

	f.attemptRepo.AssertExpectations(t)
	f.outboxRepo.AssertExpectations(t)
	f.engine.AssertExpectations(t)
}

func TestFinalizeService_Finalize_EngineFailureStillRecorded(t *testing.T) {
	f := newFinalizeFixture()
	stl := testSettlement(2766)
	opts := finalize.Options{}

	f.attemptRepo.On("HasRunning", mock.Anything, int64(2766)).Return(false, nil)
	f.archiveRepo.On("GetLatestBySettlementID", mock.Anything, int64(2766)).Return(validDocument(), nil)
	f.gateway.On("GetSettlement", mock.Anything, int64(2766)).Return(stl, nil)
	f.collector.On("Collect", mock.Anything, mock.Anything, stl).Return(testFinalizeData(stl), nil)
	f.attemptRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	f.engine.On("ProcessFinalization", mock.Anything, stl, mock.Anything, opts).
		Return(finalize.Result{
			SettlementID: 2766,
			FinalState:   settlement.StateSettling,
			Errors: []finalize.StepError{{
				Kind:         finalize.StepSettlementNotSettled,
				SettlementID: 2766,
			}},
		})

	f.tx.On("ExecuteTx", mock.Anything, mock.Anything).Return(nil)
	f.attemptRepo.On("WithTx", mock.Anything).Return()
	f.attemptRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.outboxRepo.On("WithTx", mock.Anything).Return()
	f.outboxRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	attempt, err := f.svc.Finalize(context.Background(), 2766, opts, "corr-1")
	require.NoError(t, err)

	assert.Equal(t, audit.AttemptStatusFailed, attempt.Status)
	assert.Equal(t, settlement.StateSettling, attempt.FinalState)
	require.Len(t, attempt.Errors, 1)
	assert.Equal(t, finalize.StepSettlementNotSettled, attempt.Errors[0].Kind)

	// A failed engine run is still an outcome: both writes happen.
	f.attemptRepo.AssertCalled(t, "Update", mock.Anything, attempt)
	f.outboxRepo.AssertCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestFinalizeService_Finalize_Preconditions(t *testing.T) {
	t.Run("Concurrent attempt running", func(t *testing.T) {
		f := newFinalizeFixture()
		f.attemptRepo.On("HasRunning", mock.Anything, int64(2766)).Return(true, nil)

		_, err := f.svc.Finalize(context.Background(), 2766, finalize.Options{}, "corr-1")
		assert.ErrorIs(t, err, ErrFinalizationInProgress)
		f.archiveRepo.AssertNotCalled(t, "GetLatestBySettlementID", mock.Anything, mock.Anything)
	})

	t.Run("No report uploaded", func(t *testing.T) {
		f := newFinalizeFixture()
		f.attemptRepo.On("HasRunning", mock.Anything, int64(2766)).Return(false, nil)
		f.archiveRepo.On("GetLatestBySettlementID", mock.Anything, int64(2766)).
			Return(nil, archive.ErrDocumentNotFound{SettlementID: 2766})

		_, err := f.svc.Finalize(context.Background(), 2766, finalize.Options{}, "corr-1")
		assert.ErrorIs(t, err, ErrNoReportUploaded)
	})

	t.Run("Latest report has errors", func(t *testing.T) {
		f := newFinalizeFixture()
		doc := validDocument()
		doc.ErrorCount = 2
		f.attemptRepo.On("HasRunning", mock.Anything, int64(2766)).Return(false, nil)
		f.archiveRepo.On("GetLatestBySettlementID", mock.Anything, int64(2766)).Return(doc, nil)

		_, err := f.svc.Finalize(context.Background(), 2766, finalize.Options{}, "corr-1")
		assert.ErrorIs(t, err, ErrReportHasErrors)
		f.gateway.AssertNotCalled(t, "GetSettlement", mock.Anything, mock.Anything)
	})

	t.Run("Unacknowledged warnings", func(t *testing.T) {
		f := newFinalizeFixture()
		doc := validDocument()
		doc.WarningCount = 1
		f.attemptRepo.On("HasRunning", mock.Anything, int64(2766)).Return(false, nil)
		f.archiveRepo.On("GetLatestBySettlementID", mock.Anything, int64(2766)).Return(doc, nil)

		_, err := f.svc.Finalize(context.Background(), 2766, finalize.Options{}, "corr-1")
		assert.ErrorIs(t, err, ErrWarningsNotAcknowledged)
		f.gateway.AssertNotCalled(t, "GetSettlement", mock.Anything, mock.Anything)
	})

	t.Run("Acknowledged warnings proceed", func(t *testing.T) {
		f := newFinalizeFixture()
		stl := testSettlement(2766)
		doc := validDocument()
		doc.WarningCount = 1
		opts := finalize.Options{AcknowledgeWarnings: true}

		f.attemptRepo.On("HasRunning", mock.Anything, int64(2766)).Return(false, nil)
		f.archiveRepo.On("GetLatestBySettlementID", mock.Anything, int64(2766)).Return(doc, nil)
		f.gateway.On("GetSettlement", mock.Anything, int64(2766)).Return(stl, nil)
		f.collector.On("Collect", mock.Anything, mock.Anything, stl).Return(testFinalizeData(stl), nil)
		f.attemptRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.engine.On("ProcessFinalization", mock.Anything, stl, mock.Anything, opts).
			Return(finalize.Result{SettlementID: 2766, FinalState: settlement.StateSettled})
		f.tx.On("ExecuteTx", mock.Anything, mock.Anything).Return(nil)
		f.attemptRepo.On("WithTx", mock.Anything).Return()
		f.attemptRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
		f.outboxRepo.On("WithTx", mock.Anything).Return()
		f.outboxRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

		attempt, err := f.svc.Finalize(context.Background(), 2766, opts, "corr-1")
		require.NoError(t, err)
		assert.Equal(t, audit.AttemptStatusSucceeded, attempt.Status)
	})

	t.Run("Archive lookup fails", func(t *testing.T) {
		f := newFinalizeFixture()
		f.attemptRepo.On("HasRunning", mock.Anything, int64(2766)).Return(false, nil)
		f.archiveRepo.On("GetLatestBySettlementID", mock.Anything, int64(2766)).
			Return(nil, errors.New("mongo down"))

		_, err := f.svc.Finalize(context.Background(), 2766, finalize.Options{}, "corr-1")
		assert.EqualError(t, err, "mongo down")
	})
}

func TestFinalizeService_Finalize_OutcomeWriteFailure(t *testing.T) {
	f := newFinalizeFixture()
	stl := testSettlement(2766)

	f.attemptRepo.On("HasRunning", mock.Anything, int64(2766)).Return(false, nil)
	f.archiveRepo.On("GetLatestBySettlementID", mock.Anything, int64(2766)).Return(validDocument(), nil)
	f.gateway.On("GetSettlement", mock.Anything, int64(2766)).Return(stl, nil)
	f.collector.On("Collect", mock.Anything, mock.Anything, stl).Return(testFinalizeData(stl), nil)
	f.attemptRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.engine.On("ProcessFinalization", mock.Anything, stl, mock.Anything, mock.Anything).
		Return(finalize.Result{SettlementID: 2766, FinalState: settlement.StateSettled})
	f.tx.On("ExecuteTx", mock.Anything, mock.Anything).Return(errors.New("postgres down"))

	_, err := f.svc.Finalize(context.Background(), 2766, finalize.Options{}, "corr-1")
	assert.EqualError(t, err, "postgres down")
}

func TestFinalizeService_GetAttempts(t *testing.T) {
	attempts := []*audit.Attempt{
		{ID: uuid.New(), SettlementID: 2766, Status: audit.AttemptStatusSucceeded},
	}

	f := newFinalizeFixture()
	f.attemptRepo.On("GetBySettlementID", mock.Anything, int64(2766), 25, 50).Return(attempts, nil)
	f.attemptRepo.On("CountBySettlementID", mock.Anything, int64(2766)).Return(int64(51), nil)

	got, total, err := f.svc.GetAttempts(context.Background(), 2766, 3, 25)
	require.NoError(t, err)
	assert.Equal(t, attempts, got)
	assert.Equal(t, int64(51), total)
	f.attemptRepo.AssertExpectations(t)
}
