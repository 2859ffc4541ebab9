package registry

import "time"

// Model kinds recognized by the registry.
const (
	KindKMeans = "kmeans"
	KindDBSCAN = "dbscan"
)

// Kinds lists every model kind the pipeline trains.
var Kinds = []string{KindKMeans, KindDBSCAN}

// ValidKind reports whether kind names a supported model family.
func ValidKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// User is a registered operator identity. Training runs record their
// creator by username.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex" json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `gorm:"default:user" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login,omitempty"`
}

// ModelVersion is one immutable trained-model record. Versions are never
// mutated or deleted; newer versions of the same kind supersede older
// ones. Params holds the serialized artifact bundle (scaler, projection
// and model state tagged with one run id).
type ModelVersion struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Version    string    `gorm:"uniqueIndex;not null" json:"version"`
	Kind       string    `gorm:"index;not null" json:"kind"`
	RunID      string    `gorm:"index;not null" json:"run_id"`
	Params     []byte    `json:"-"`
	Silhouette float64   `json:"silhouette"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// SegmentAssignment maps one customer to the segment a model version put
// them in. The full set for a version is written atomically.
type SegmentAssignment struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	CustomerID     int       `gorm:"index;not null" json:"customer_id"`
	Segment        int       `gorm:"not null" json:"segment"`
	ModelVersionID uint      `gorm:"index;not null" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditEntry records one caller-facing action against the pipeline.
type AuditEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Actor     string    `gorm:"index" json:"actor"`
	Action    string    `gorm:"not null" json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
