package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const inventoryCollection = "inventory"

// InventoryRepository implements inventory.Repository on tenant databases.
type InventoryRepository struct {
	router *Router
}

// NewInventoryRepository creates a new InventoryRepository.
func NewInventoryRepository(router *Router) *InventoryRepository {
	return &InventoryRepository{router: router}
}

func (r *InventoryRepository) collection(ctx context.Context, orgID int64) (*mongodrv.Collection, error) {
	db, err := r.router.Resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return db.Collection(inventoryCollection), nil
}

// RiskScoresByIP returns risk scores keyed by IP for the given targets.
func (r *InventoryRepository) RiskScoresByIP(ctx context.Context, orgID int64, ips []string) (map[string]float64, error) {
	if len(ips) == 0 {
		return map[string]float64{}, nil
	}

	coll, err := r.collection(ctx, orgID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetProjection(bson.M{"ip": 1, "risk_score": 1})
	cursor, err := coll.Find(ctx, bson.M{"ip": bson.M{"$in": ips}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		IP        string  `bson:"ip"`
		RiskScore float64 `bson:"risk_score"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode inventory: %w", err)
	}

	scores := make(map[string]float64, len(docs))
	for _, d := range docs {
		scores[d.IP] = d.RiskScore
	}
	return scores, nil
}
