// Package registry provides durable, versioned storage for trained model
// artifacts, their quality metrics and the segment assignments each
// version produced.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrVersionNotFound indicates no persisted version exists for the
// requested kind (or kind/version pair).
var ErrVersionNotFound = errors.New("model version not found")

// PersistenceError wraps a storage-layer failure. These are not retried;
// they surface to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Registry stores model versions and segment assignments in a relational
// database. Persisted versions are immutable, so concurrent readers need
// no coordination; writes for one training run happen inside a single
// transaction.
type Registry struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
// Supported drivers: "postgres" and "sqlite".
func Open(driver, dsn string) (*Registry, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	return New(db)
}

// New wraps an existing database handle and migrates the schema.
func New(db *gorm.DB) (*Registry, error) {
	err := db.AutoMigrate(&User{}, &ModelVersion{}, &SegmentAssignment{}, &AuditEntry{})
	if err != nil {
		return nil, &PersistenceError{Op: "migrate", Err: err}
	}
	return &Registry{db: db}, nil
}

// NewVersionID generates a time-ordered version identifier.
func NewVersionID(now time.Time) string {
	return now.UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}

// SaveVersion persists a new immutable model version. Prior versions are
// never overwritten.
func (r *Registry) SaveVersion(ctx context.Context, kind, runID string, params []byte, silhouette float64, creator string) (*ModelVersion, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}

	mv := &ModelVersion{
		Version:    NewVersionID(time.Now()),
		Kind:       kind,
		RunID:      runID,
		Params:     params,
		Silhouette: silhouette,
		CreatedBy:  creator,
	}
	if err := r.db.WithContext(ctx).Create(mv).Error; err != nil {
		return nil, &PersistenceError{Op: "save version", Err: err}
	}
	return mv, nil
}

// LatestVersion returns the newest persisted version of a kind.
func (r *Registry) LatestVersion(ctx context.Context, kind string) (*ModelVersion, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}

	var mv ModelVersion
	err := r.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("created_at DESC, id DESC").
		First(&mv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "latest version", Err: err}
	}
	return &mv, nil
}

// Version returns one specific persisted version of a kind.
func (r *Registry) Version(ctx context.Context, kind, version string) (*ModelVersion, error) {
	var mv ModelVersion
	err := r.db.WithContext(ctx).
		Where("kind = ? AND version = ?", kind, version).
		First(&mv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load version", Err: err}
	}
	return &mv, nil
}

// SaveAssignments associates customers with segment labels under one
// version, all inside one transaction: a failure anywhere leaves zero
// assignment rows for the version.
func (r *Registry) SaveAssignments(ctx context.Context, versionID uint, assignments map[int]int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveAssignmentsTx(tx, versionID, assignments)
	})
}

func saveAssignmentsTx(tx *gorm.DB, versionID uint, assignments map[int]int) error {
	rows := make([]SegmentAssignment, 0, len(assignments))
	for customerID, segment := range assignments {
		rows = append(rows, SegmentAssignment{
			CustomerID:     customerID,
			Segment:        segment,
			ModelVersionID: versionID,
		})
	}

	const batch = 500
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		for _, row := range rows[start:end] {
			// Labels below the noise label cannot come from any engine.
			if row.Segment < -1 {
				return fmt.Errorf("invalid segment label %d for customer %d",
					row.Segment, row.CustomerID)
			}
		}
		if err := tx.Create(rows[start:end]).Error; err != nil {
			return &PersistenceError{Op: "save assignments", Err: err}
		}
	}
	return nil
}

// SaveTrainingRun persists a model version and its full assignment set as
// one atomic unit, so no reader ever observes a version whose assignments
// are partially written.
func (r *Registry) SaveTrainingRun(ctx context.Context, kind, runID string, params []byte, silhouette float64, creator string, assignments map[int]int) (*ModelVersion, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}

	mv := &ModelVersion{
		Version:    NewVersionID(time.Now()),
		Kind:       kind,
		RunID:      runID,
		Params:     params,
		Silhouette: silhouette,
		CreatedBy:  creator,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(mv).Error; err != nil {
			return &PersistenceError{Op: "save version", Err: err}
		}
		return saveAssignmentsTx(tx, mv.ID, assignments)
	})
	if err != nil {
		return nil, err
	}
	return mv, nil
}

// Segments returns up to limit assignments recorded under a version.
func (r *Registry) Segments(ctx context.Context, versionID uint, limit int) ([]SegmentAssignment, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []SegmentAssignment
	err := r.db.WithContext(ctx).
		Where("model_version_id = ?", versionID).
		Order("customer_id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, &PersistenceError{Op: "load segments", Err: err}
	}
	return rows, nil
}

// LogAudit appends an audit entry. Audit writes are best-effort for the
// caller but any failure is still reported.
func (r *Registry) LogAudit(ctx context.Context, actor, action, details string) error {
	entry := &AuditEntry{Actor: actor, Action: action, Details: details}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return &PersistenceError{Op: "audit", Err: err}
	}
	return nil
}

// AuditLog returns the most recent audit entries, newest first.
func (r *Registry) AuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var entries []AuditEntry
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, &PersistenceError{Op: "load audit log", Err: err}
	}
	return entries, nil
}
