package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vulnwarden/api/pkg/domain/report"
	"github.com/vulnwarden/api/pkg/domain/shared"
)

const reportCollection = "reports"

// ReportRepository implements report.Repository on tenant databases.
type ReportRepository struct {
	router *Router
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(router *Router) *ReportRepository {
	return &ReportRepository{router: router}
}

func (r *ReportRepository) collection(ctx context.Context, orgID int64) (*mongodrv.Collection, error) {
	db, err := r.router.Resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return db.Collection(reportCollection), nil
}

// FindByScanAndModification returns the report for the idempotency key.
func (r *ReportRepository) FindByScanAndModification(ctx context.Context, orgID int64, tenableScanID string, lastModification int64) (*report.Report, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{
		"tenable_scan_id":        tenableScanID,
		"last_modification_date": lastModification,
	}

	var rep report.Report
	err = coll.FindOne(ctx, filter).Decode(&rep)
	if err != nil {
		if err == mongodrv.ErrNoDocuments {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	return &rep, nil
}

// Create stores a new report.
func (r *ReportRepository) Create(ctx context.Context, orgID int64, rep *report.Report) error {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return err
	}

	result, err := coll.InsertOne(ctx, rep)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		rep.ID = oid
	}
	return nil
}

// Update replaces the stored document.
func (r *ReportRepository) Update(ctx context.Context, orgID int64, rep *report.Report) error {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return err
	}

	result, err := coll.ReplaceOne(ctx, bson.M{"_id": rep.ID}, rep)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if result.MatchedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Get returns one report by id.
func (r *ReportRepository) Get(ctx context.Context, orgID int64, id string) (*report.Report, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, shared.ErrNotFound
	}

	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var rep report.Report
	err = coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&rep)
	if err != nil {
		if err == mongodrv.ErrNoDocuments {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	return &rep, nil
}

// List returns all reports for the organisation, newest first.
func (r *ReportRepository) List(ctx context.Context, orgID int64) ([]*report.Report, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "last_modification_date", Value: -1}})
	cursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []*report.Report
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}
	return reports, nil
}

// ListModificationDates returns every stored last_modification_date.
func (r *ReportRepository) ListModificationDates(ctx context.Context, orgID int64) (map[int64]bool, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetProjection(bson.M{"last_modification_date": 1})
	cursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query report dates: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		LastModificationDate int64 `bson:"last_modification_date"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode report dates: %w", err)
	}

	dates := make(map[int64]bool, len(docs))
	for _, d := range docs {
		dates[d.LastModificationDate] = true
	}
	return dates, nil
}
