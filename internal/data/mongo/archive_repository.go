package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/switchdesk-settlements-console/internal/domain/archive"
)

const (
	// ArchiveCollectionName is the name of the report archive collection in MongoDB
	ArchiveCollectionName = "report_archive"
)

// ArchiveRepository implements the archive.Repository interface for MongoDB
type ArchiveRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewArchiveRepository creates a new MongoDB report archive repository
func NewArchiveRepository(logger *slog.Logger, db *mongo.Database) archive.Repository {
	return &ArchiveRepository{
		db:     db,
		logger: logger,
	}
}

// Save stores an archived report document
func (r *ArchiveRepository) Save(ctx context.Context, doc *archive.Document) error {
	collection := r.db.Collection(ArchiveCollectionName)

	_, err := collection.InsertOne(ctx, doc)
	if err != nil {
		r.logger.Error("Failed to archive report",
			"settlement_id", doc.SettlementID,
			"document_id", doc.ID.String(),
			"error", err)
		return fmt.Errorf("failed to archive report: %w", err)
	}

	return nil
}

// GetByID retrieves a single archived report by document ID
func (r *ArchiveRepository) GetByID(ctx context.Context, id uuid.UUID) (*archive.Document, error) {
	collection := r.db.Collection(ArchiveCollectionName)

	filter := bson.M{"id": id}
	var doc archive.Document
	err := collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, archive.ErrDocumentNotFound{}
		}
		r.logger.Error("Failed to get archived report",
			"document_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get archived report: %w", err)
	}

	return &doc, nil
}

// GetLatestBySettlementID retrieves the most recent archived report for a
// settlement. Returns ErrDocumentNotFound if the settlement has no uploads.
func (r *ArchiveRepository) GetLatestBySettlementID(ctx context.Context, settlementID int64) (*archive.Document, error) {
	collection := r.db.Collection(ArchiveCollectionName)

	filter := bson.M{"settlement_id": settlementID}
	opts := options.FindOne().SetSort(bson.M{"uploaded_at": -1})

	var doc archive.Document
	err := collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, archive.ErrDocumentNotFound{SettlementID: settlementID}
		}
		r.logger.Error("Failed to get latest archived report",
			"settlement_id", settlementID,
			"error", err)
		return nil, fmt.Errorf("failed to get latest archived report: %w", err)
	}

	return &doc, nil
}

// GetBySettlementID retrieves paginated archived reports for a settlement,
// newest first.
func (r *ArchiveRepository) GetBySettlementID(ctx context.Context, settlementID int64, limit, offset int) ([]*archive.Document, error) {
	collection := r.db.Collection(ArchiveCollectionName)

	filter := bson.M{"settlement_id": settlementID}
	opts := options.Find().
		SetSort(bson.M{"uploaded_at": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get archived reports",
			"settlement_id", settlementID,
			"error", err)
		return nil, fmt.Errorf("failed to get archived reports: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*archive.Document
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode archived reports",
			"settlement_id", settlementID,
			"error", err)
		return nil, fmt.Errorf("failed to decode archived reports: %w", err)
	}

	return docs, nil
}

// CountBySettlementID counts the archived reports for a settlement
func (r *ArchiveRepository) CountBySettlementID(ctx context.Context, settlementID int64) (int64, error) {
	collection := r.db.Collection(ArchiveCollectionName)

	filter := bson.M{"settlement_id": settlementID}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count archived reports",
			"settlement_id", settlementID,
			"error", err)
		return 0, fmt.Errorf("failed to count archived reports: %w", err)
	}

	return count, nil
}
