// Package inventory exposes the asset inventory used to enrich
// vulnerabilities with risk scores.
package inventory

import "context"

// Asset is an inventoried host in a tenant's database.
type Asset struct {
	ID        string  `bson:"_id,omitempty" json:"id"`
	IP        string  `bson:"ip" json:"ip"`
	Hostname  string  `bson:"hostname,omitempty" json:"hostname,omitempty"`
	RiskScore float64 `bson:"risk_score" json:"risk_score"`
}

// Repository provides read access to a tenant's inventory collection.
type Repository interface {
	// RiskScoresByIP returns risk scores keyed by IP for the given targets.
	// Missing IPs are absent from the map.
	RiskScoresByIP(ctx context.Context, orgID int64, ips []string) (map[string]float64, error)
}
