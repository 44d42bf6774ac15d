package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vulnwarden/api/pkg/domain/scan"
	"github.com/vulnwarden/api/pkg/domain/shared"
)

const scanCollection = "scans"

// ScanRepository implements scan.Repository on tenant databases.
type ScanRepository struct {
	router *Router
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(router *Router) *ScanRepository {
	return &ScanRepository{router: router}
}

func (r *ScanRepository) collection(ctx context.Context, orgID int64) (*mongodrv.Collection, error) {
	db, err := r.router.Resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return db.Collection(scanCollection), nil
}

// EnsureUniqueIndex creates the unique index on tenable_scan_id.
func (r *ScanRepository) EnsureUniqueIndex(ctx context.Context, orgID int64) error {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return err
	}

	model := mongodrv.IndexModel{
		Keys:    bson.D{{Key: "tenable_scan_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}

	if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("failed to ensure scan index: %w", err)
	}
	return nil
}

// ListByTenableIDs returns local scans whose external id is in ids.
func (r *ScanRepository) ListByTenableIDs(ctx context.Context, orgID int64, ids []string) ([]*scan.Scan, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	// OR over external ids, mirroring the existence query shape.
	or := make(bson.A, 0, len(ids))
	for _, id := range ids {
		or = append(or, bson.M{"tenable_scan_id": id})
	}

	cursor, err := coll.Find(ctx, bson.M{"$or": or})
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer cursor.Close(ctx)

	var scans []*scan.Scan
	if err := cursor.All(ctx, &scans); err != nil {
		return nil, fmt.Errorf("failed to decode scans: %w", err)
	}
	return scans, nil
}

// ListTenableIDs returns all local external ids, including soft-deleted.
func (r *ScanRepository) ListTenableIDs(ctx context.Context, orgID int64) ([]string, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetProjection(bson.M{"tenable_scan_id": 1})
	cursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan ids: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		TenableScanID string `bson:"tenable_scan_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode scan ids: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.TenableScanID)
	}
	return ids, nil
}

// GetByTenableID returns the scan with the given external id.
func (r *ScanRepository) GetByTenableID(ctx context.Context, orgID int64, tenableID string) (*scan.Scan, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var s scan.Scan
	err = coll.FindOne(ctx, bson.M{"tenable_scan_id": tenableID}).Decode(&s)
	if err != nil {
		if err == mongodrv.ErrNoDocuments {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query scan: %w", err)
	}
	return &s, nil
}

// Insert stores new scans.
func (r *ScanRepository) Insert(ctx context.Context, orgID int64, scans []*scan.Scan) error {
	if len(scans) == 0 {
		return nil
	}

	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return err
	}

	docs := make([]any, 0, len(scans))
	for _, s := range scans {
		docs = append(docs, s)
	}

	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert scans: %w", err)
	}
	return nil
}

// Update replaces the stored document for the scan.
func (r *ScanRepository) Update(ctx context.Context, orgID int64, s *scan.Scan) error {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return err
	}

	result, err := coll.ReplaceOne(ctx, bson.M{"tenable_scan_id": s.TenableScanID}, s)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}
	if result.MatchedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkTenableDeleted flags the given external ids as deleted upstream.
func (r *ScanRepository) MarkTenableDeleted(ctx context.Context, orgID int64, tenableIDs []string) error {
	if len(tenableIDs) == 0 {
		return nil
	}

	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return err
	}

	filter := bson.M{"tenable_scan_id": bson.M{"$in": tenableIDs}}
	update := bson.M{"$set": bson.M{"is_tenable_deleted": true}}

	if _, err := coll.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to flag deleted scans: %w", err)
	}
	return nil
}

// List returns all scans for API consumption.
func (r *ScanRepository) List(ctx context.Context, orgID int64, includeDeleted bool) ([]*scan.Scan, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if !includeDeleted {
		filter["is_tenable_deleted"] = bson.M{"$ne": true}
	}

	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer cursor.Close(ctx)

	var scans []*scan.Scan
	if err := cursor.All(ctx, &scans); err != nil {
		return nil, fmt.Errorf("failed to decode scans: %w", err)
	}
	return scans, nil
}
