package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/vulnerability"
)

const vulnerabilityCollection = "vulnerabilities"

// VulnerabilityRepository implements vulnerability.Repository on tenant
// databases.
type VulnerabilityRepository struct {
	router *Router
}

// NewVulnerabilityRepository creates a new VulnerabilityRepository.
func NewVulnerabilityRepository(router *Router) *VulnerabilityRepository {
	return &VulnerabilityRepository{router: router}
}

func (r *VulnerabilityRepository) collection(ctx context.Context, orgID int64) (*mongodrv.Collection, error) {
	db, err := r.router.Resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return db.Collection(vulnerabilityCollection), nil
}

// Get returns one vulnerability.
func (r *VulnerabilityRepository) Get(ctx context.Context, orgID int64, id primitive.ObjectID) (*vulnerability.Vulnerability, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var v vulnerability.Vulnerability
	err = coll.FindOne(ctx, bson.M{"_id": id}).Decode(&v)
	if err != nil {
		if err == mongodrv.ErrNoDocuments {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query vulnerability: %w", err)
	}
	return &v, nil
}

// Save replaces the stored document with the entity's current state.
func (r *VulnerabilityRepository) Save(ctx context.Context, orgID int64, v *vulnerability.Vulnerability) error {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return err
	}

	result, err := coll.ReplaceOne(ctx, bson.M{"_id": v.ID}, v)
	if err != nil {
		return fmt.Errorf("failed to save vulnerability: %w", err)
	}
	if result.MatchedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// List returns vulnerabilities matching the filter.
func (r *VulnerabilityRepository) List(ctx context.Context, orgID int64, filter vulnerability.ListFilter) ([]*vulnerability.Vulnerability, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	query := bson.M{}
	if !filter.IncludeDeleted {
		query["is_deleted"] = bson.M{"$ne": true}
	}
	if len(filter.Severities) > 0 {
		query["severity"] = bson.M{"$in": filter.Severities}
	}
	if len(filter.PluginIDs) > 0 {
		query["plugin_id"] = bson.M{"$in": filter.PluginIDs}
	}
	if len(filter.Targets) > 0 {
		query["target"] = bson.M{"$in": filter.Targets}
	}
	if filter.TenableScanID != "" {
		query["tenable_scan_id"] = filter.TenableScanID
	}

	cursor, err := coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vulnerabilities: %w", err)
	}
	defer cursor.Close(ctx)

	var vulns []*vulnerability.Vulnerability
	if err := cursor.All(ctx, &vulns); err != nil {
		return nil, fmt.Errorf("failed to decode vulnerabilities: %w", err)
	}
	return vulns, nil
}

// FindForAction resolves the bulk-action target set.
func (r *VulnerabilityRepository) FindForAction(ctx context.Context, orgID int64, filter vulnerability.ActionFilter) ([]*vulnerability.Vulnerability, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	query := bson.M{"is_deleted": bson.M{"$ne": true}}
	if len(filter.Ports) > 0 {
		query["port"] = bson.M{"$in": filter.Ports}
	}
	if filter.Protocol != "" {
		query["protocol"] = filter.Protocol
	}
	if len(filter.PluginIDs) > 0 {
		query["plugin_id"] = bson.M{"$in": filter.PluginIDs}
	}
	if len(filter.Targets) > 0 {
		query["target"] = bson.M{"$in": filter.Targets}
	}

	cursor, err := coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vulnerabilities for action: %w", err)
	}
	defer cursor.Close(ctx)

	var vulns []*vulnerability.Vulnerability
	if err := cursor.All(ctx, &vulns); err != nil {
		return nil, fmt.Errorf("failed to decode vulnerabilities: %w", err)
	}
	return vulns, nil
}

// Lock conditionally locks the given ids. A document matches only when it
// is unlocked or already locked by the same user, so the matched count is
// the compare-and-set outcome.
func (r *VulnerabilityRepository) Lock(ctx context.Context, orgID int64, ids []primitive.ObjectID, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return 0, err
	}

	filter := bson.M{
		"_id": bson.M{"$in": ids},
		"$or": bson.A{
			bson.M{"locked": nil},
			bson.M{"locked": bson.M{"$exists": false}},
			bson.M{"locked.user_id": userID},
		},
	}
	update := bson.M{"$set": bson.M{
		"locked": vulnerability.Lock{UserID: userID, LockedAt: time.Now()},
	}}

	result, err := coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to lock vulnerabilities: %w", err)
	}
	return result.MatchedCount, nil
}

// Unlock clears locks held by the user on the given ids.
func (r *VulnerabilityRepository) Unlock(ctx context.Context, orgID int64, ids []primitive.ObjectID, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return 0, err
	}

	filter := bson.M{
		"_id":            bson.M{"$in": ids},
		"locked.user_id": userID,
	}
	update := bson.M{"$unset": bson.M{"locked": ""}}

	result, err := coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to unlock vulnerabilities: %w", err)
	}
	return result.MatchedCount, nil
}

// UpsertFromRemote merges a batch of enriched scanner vulnerabilities.
// A finding is identified by plugin, target, port/protocol and scan; sync
// merges refresh the volatile fields and never touch user annotations.
func (r *VulnerabilityRepository) UpsertFromRemote(ctx context.Context, orgID int64, vulns []*vulnerability.Vulnerability) ([]primitive.ObjectID, error) {
	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(vulns))
	for _, v := range vulns {
		filter := bson.M{
			"plugin_id":       v.PluginID,
			"target":          v.Target,
			"port_protocol":   v.PortProtocol,
			"tenable_scan_id": v.TenableScanID,
		}

		update := bson.M{
			"$set": bson.M{
				"name":        v.Name,
				"synopsis":    v.Synopsis,
				"description": v.Description,
				"solution":    v.Solution,
				"port":        v.Port,
				"protocol":    v.Protocol,
				"severity":    v.Severity,
				"count":       v.Count,
				"see_also":    v.SeeAlso,
				"cve":         v.CVE,
				"risk_score":  v.RiskScore,
				"last_seen":   v.LastSeen,
				"is_deleted":  false,
				"updated_at":  time.Now(),
			},
			"$setOnInsert": bson.M{
				"first_seen": v.FirstSeen,
				"history":    []vulnerability.HistoryEntry{},
				"notes":      []vulnerability.Note{},
				"created_at": time.Now(),
			},
		}

		opts := options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After).
			SetProjection(bson.M{"_id": 1})

		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
			return ids, fmt.Errorf("failed to upsert vulnerability %s/%s: %w", v.PluginID, v.Target, err)
		}
		ids = append(ids, doc.ID)
	}

	return ids, nil
}
