package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/switchdesk-settlements-console/internal/domain/archive"
	"github.com/switchdesk-settlements-console/internal/domain/report"
	"github.com/switchdesk-settlements-console/internal/domain/validation"
)

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

func TestNewArchiveRepository(t *testing.T) {
	db := &mongo.Database{}
	logger := slog.Default()

	repo := NewArchiveRepository(logger, db)

	assert.NotNil(t, repo)
	assert.IsType(t, &ArchiveRepository{}, repo)
}

func sampleDocument() *archive.Document {
	rpt := &report.Report{
		SettlementID: 2766,
		Entries: []report.Entry{
			{
				Participant:       report.Participant{ID: 11, Name: "payerfsp"},
				PositionAccountID: 21,
				Balance:           1501000,
				TransferAmount:    -1500,
			},
		},
	}
	findings := validation.NewSet()
	findings.Add(validation.Finding{
		Kind: validation.KindBalanceNotAsExpected,
		Data: validation.Data{AccountID: 21},
	})
	return archive.NewDocument(rpt, "report-2766.xlsx", findings, "corr-1")
}

func TestArchiveRepository_MockRoundTrip(t *testing.T) {
	mockRepo := &MockArchiveRepository{}
	ctx := context.Background()

	doc := sampleDocument()

	mockRepo.On("Save", mock.Anything, doc).Return(nil)
	mockRepo.On("GetByID", mock.Anything, doc.ID).Return(doc, nil)
	mockRepo.On("GetLatestBySettlementID", mock.Anything, int64(2766)).Return(doc, nil)
	mockRepo.On("GetBySettlementID", mock.Anything, int64(2766), 20, 0).Return([]*archive.Document{doc}, nil)
	mockRepo.On("CountBySettlementID", mock.Anything, int64(2766)).Return(int64(1), nil)

	assert.NoError(t, mockRepo.Save(ctx, doc))

	got, err := mockRepo.GetByID(ctx, doc.ID)
	assert.NoError(t, err)
	assert.Equal(t, doc, got)

	latest, err := mockRepo.GetLatestBySettlementID(ctx, 2766)
	assert.NoError(t, err)
	assert.Equal(t, doc, latest)

	docs, err := mockRepo.GetBySettlementID(ctx, 2766, 20, 0)
	assert.NoError(t, err)
	assert.Len(t, docs, 1)

	count, err := mockRepo.CountBySettlementID(ctx, 2766)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	mockRepo.AssertExpectations(t)
}

func TestArchiveRepository_NotFound(t *testing.T) {
	mockRepo := &MockArchiveRepository{}
	ctx := context.Background()

	notFound := archive.ErrDocumentNotFound{SettlementID: 404}
	mockRepo.On("GetLatestBySettlementID", mock.Anything, int64(404)).Return(nil, notFound)

	_, err := mockRepo.GetLatestBySettlementID(ctx, 404)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, notFound))

	mockRepo.AssertExpectations(t)
}

func TestNewDocument_Counts(t *testing.T) {
	doc := sampleDocument()

	assert.Equal(t, int64(2766), doc.SettlementID)
	assert.Equal(t, "report-2766.xlsx", doc.FileName)
	assert.Len(t, doc.Findings, 1)
	assert.Equal(t, 0, doc.ErrorCount)
	assert.Equal(t, 1, doc.WarningCount)
	assert.WithinDuration(t, time.Now(), doc.UploadedAt, time.Minute)
}
