// Package archive holds the persisted form of uploaded settlement reports.
// Every successfully parsed report is archived together with its validation
// findings so operators can review what was uploaded and why it was or was
// not accepted.
package archive

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/switchdesk-settlements-console/internal/domain/report"
	"github.com/switchdesk-settlements-console/internal/domain/validation"
)

// Document is one archived report upload with its validation outcome.
type Document struct {
	ID            uuid.UUID            `bson:"id" json:"id"`
	SettlementID  int64                `bson:"settlement_id" json:"settlement_id"`
	FileName      string               `bson:"file_name" json:"file_name"`
	Entries       []report.Entry       `bson:"entries" json:"entries"`
	Findings      []validation.Finding `bson:"findings" json:"findings"`
	ErrorCount    int                  `bson:"error_count" json:"error_count"`
	WarningCount  int                  `bson:"warning_count" json:"warning_count"`
	CorrelationID string               `bson:"correlation_id" json:"correlation_id"`
	UploadedAt    time.Time            `bson:"uploaded_at" json:"uploaded_at"`
}

// NewDocument assembles an archive document from a parsed report and its
// validation findings.
func NewDocument(rpt *report.Report, fileName string, findings *validation.Set, correlationID string) *Document {
	doc := &Document{
		ID:            uuid.New(),
		SettlementID:  rpt.SettlementID,
		FileName:      fileName,
		Entries:       rpt.Entries,
		CorrelationID: correlationID,
		UploadedAt:    time.Now(),
	}
	if findings != nil {
		doc.Findings = findings.All()
		errs, warns := findings.Partition()
		doc.ErrorCount = len(errs)
		doc.WarningCount = len(warns)
	}
	return doc
}

// Repository manages archived report persistence
type Repository interface {
	Save(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetLatestBySettlementID(ctx context.Context, settlementID int64) (*Document, error)
	GetBySettlementID(ctx context.Context, settlementID int64, limit, offset int) ([]*Document, error)
	CountBySettlementID(ctx context.Context, settlementID int64) (int64, error)
}

// ErrDocumentNotFound indicates a missing archived report
type ErrDocumentNotFound struct {
	SettlementID int64
}

func (e ErrDocumentNotFound) Error() string {
	return "archived report not found for settlement: " + strconv.FormatInt(e.SettlementID, 10)
}
