// Package pipeline orchestrates the full segmentation flow: standardize,
// project, cluster, persist the versioned artifacts, and serve
// predictions and drift checks against the latest stored version.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seglab/gosegment/pkg/cluster"
	"github.com/seglab/gosegment/pkg/cluster/dbscan"
	"github.com/seglab/gosegment/pkg/cluster/kmeans"
	"github.com/seglab/gosegment/pkg/dataset"
	"github.com/seglab/gosegment/pkg/drift"
	"github.com/seglab/gosegment/pkg/notify"
	"github.com/seglab/gosegment/pkg/preprocess"
	"github.com/seglab/gosegment/pkg/reduce"
	"github.com/seglab/gosegment/pkg/registry"
)

// Store is the slice of the registry the pipeline depends on.
type Store interface {
	SaveTrainingRun(ctx context.Context, kind, runID string, params []byte, silhouette float64, creator string, assignments map[int]int) (*registry.ModelVersion, error)
	LatestVersion(ctx context.Context, kind string) (*registry.ModelVersion, error)
	LogAudit(ctx context.Context, actor, action, details string) error
}

// Params carries the training parameters for every stage.
type Params struct {
	Features      []string
	Clusters      int
	MaxIterations int
	Seed          int64
	Eps           float64
	MinSamples    int
	Components    int
	DriftAlpha    float64
}

// TrainResult summarizes one training run across both model kinds.
type TrainResult struct {
	RunID             string
	Versions          map[string]*registry.ModelVersion
	Silhouettes       map[string]float64
	ExplainedVariance []float64
	Samples           int
}

// HealthReport is the outcome of a drift check against a stored model.
type HealthReport struct {
	Kind        string                 `json:"kind"`
	Version     string                 `json:"version"`
	Features    []drift.FeatureDrift   `json:"features"`
	Performance drift.PerformanceDelta `json:"performance"`
	Drift       bool                   `json:"drift_detected"`
	CheckedAt   time.Time              `json:"checked_at"`
}

// Engine runs training, prediction and health checks on top of a Store.
type Engine struct {
	params     Params
	store      Store
	notifier   notify.Notifier
	recipients []string
	log        zerolog.Logger
	cache      *artifactCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier routes alerts through n instead of discarding them.
func WithNotifier(n notify.Notifier, recipients []string) Option {
	return func(e *Engine) {
		e.notifier = n
		e.recipients = recipients
	}
}

// WithLogger attaches a process logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New builds an Engine. Alerts go nowhere until WithNotifier is set.
func New(store Store, params Params, opts ...Option) *Engine {
	if params.DriftAlpha <= 0 || params.DriftAlpha >= 1 {
		params.DriftAlpha = drift.DefaultAlpha
	}
	e := &Engine{
		params:   params,
		store:    store,
		notifier: notify.Noop{},
		log:      zerolog.Nop(),
		cache:    newArtifactCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Train fits the scaler, the projection and both clustering engines on
// rows, then persists one new model version per kind. Each version's
// assignments and metadata land in a single transaction; a failure for
// one kind does not undo the other.
func (e *Engine) Train(ctx context.Context, rows []dataset.Row, creator string) (*TrainResult, error) {
	if len(rows) == 0 {
		return nil, dataset.ErrEmptyDataset
	}

	scaler := preprocess.NewStandardScaler(e.params.Features)
	scaled, err := scaler.FitTransform(rows)
	if err != nil {
		return nil, fmt.Errorf("standardize: %w", err)
	}

	pca := reduce.New(e.params.Components)
	projected, err := pca.FitTransform(scaled)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}

	scalerBlob, err := scaler.Save()
	if err != nil {
		return nil, fmt.Errorf("serialize scaler: %w", err)
	}
	pcaBlob, err := pca.Save()
	if err != nil {
		return nil, fmt.Errorf("serialize projection: %w", err)
	}

	runID := uuid.NewString()
	ids := dataset.IDs(rows)
	result := &TrainResult{
		RunID:             runID,
		Versions:          make(map[string]*registry.ModelVersion, len(registry.Kinds)),
		Silhouettes:       make(map[string]float64, len(registry.Kinds)),
		ExplainedVariance: pca.ExplainedVarianceRatio(),
		Samples:           len(rows),
	}

	engines := map[string]cluster.Engine{
		registry.KindKMeans: kmeans.New(e.params.Clusters,
			kmeans.WithMaxIterations(e.params.MaxIterations),
			kmeans.WithSeed(e.params.Seed)),
		registry.KindDBSCAN: dbscan.New(e.params.Eps, e.params.MinSamples),
	}

	for _, kind := range registry.Kinds {
		eng := engines[kind]
		labels, err := eng.FitPredict(projected)
		if err != nil {
			return nil, fmt.Errorf("fit %s: %w", kind, err)
		}

		score, err := cluster.Silhouette(projected, labels)
		if err != nil {
			// fewer than two clusters: the score is undefined, store zero
			e.log.Warn().Str("kind", kind).Err(err).Msg("silhouette unavailable")
			score = 0
		}

		modelBlob, err := eng.Save()
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", kind, err)
		}
		art := &Artifacts{
			RunID:      runID,
			Kind:       kind,
			Features:   e.params.Features,
			Scaler:     scalerBlob,
			Projection: pcaBlob,
			Model:      modelBlob,
		}
		blob, err := art.Encode()
		if err != nil {
			return nil, err
		}

		assignments := make(map[int]int, len(ids))
		for i, id := range ids {
			assignments[id] = labels[i]
		}

		version, err := e.store.SaveTrainingRun(ctx, kind, runID, blob, score, creator, assignments)
		if err != nil {
			return nil, fmt.Errorf("persist %s: %w", kind, err)
		}
		result.Versions[kind] = version
		result.Silhouettes[kind] = score

		e.log.Info().
			Str("kind", kind).
			Str("version", version.Version).
			Float64("silhouette", score).
			Int("samples", len(rows)).
			Msg("model version stored")

		subject, body := notify.TrainingComplete(kind, version.Version, score)
		e.alert(ctx, subject, body)
	}

	e.audit(ctx, creator, "train",
		fmt.Sprintf("run %s trained on %d samples", runID, len(rows)))
	return result, nil
}

// Predict assigns each row of the batch to a segment using the latest
// stored model of the given kind. Keys of the result are customer IDs.
func (e *Engine) Predict(ctx context.Context, kind string, rows []dataset.Row) (map[int]int, string, error) {
	if len(rows) == 0 {
		return nil, "", dataset.ErrEmptyDataset
	}

	model, err := e.latest(ctx, kind)
	if err != nil {
		return nil, "", err
	}

	labels, err := e.label(model, rows)
	if err != nil {
		return nil, "", err
	}

	out := make(map[int]int, len(rows))
	for i, id := range dataset.IDs(rows) {
		out[id] = labels[i]
	}
	return out, model.version, nil
}

// CheckHealth compares a current batch against a reference batch under
// the latest model of the given kind: per-feature distribution drift on
// the raw feature values, and segment agreement on the model's labels.
// Detected drift triggers an alert; a failed check triggers a failure
// alert and returns the error.
func (e *Engine) CheckHealth(ctx context.Context, kind string, current, reference []dataset.Row) (*HealthReport, error) {
	report, err := e.checkHealth(ctx, kind, current, reference)
	if err != nil {
		subject, body := notify.HealthCheckFailure(kind, err)
		e.alert(ctx, subject, body)
		return nil, err
	}
	return report, nil
}

func (e *Engine) checkHealth(ctx context.Context, kind string, current, reference []dataset.Row) (*HealthReport, error) {
	if len(current) == 0 || len(reference) == 0 {
		return nil, dataset.ErrEmptyDataset
	}

	model, err := e.latest(ctx, kind)
	if err != nil {
		return nil, err
	}

	curCols, err := dataset.Columns(current, model.artifacts.Features)
	if err != nil {
		return nil, fmt.Errorf("current batch: %w", err)
	}
	refCols, err := dataset.Columns(reference, model.artifacts.Features)
	if err != nil {
		return nil, fmt.Errorf("reference batch: %w", err)
	}

	features, err := drift.CompareDistributions(curCols, refCols, model.artifacts.Features, e.params.DriftAlpha)
	if err != nil {
		return nil, err
	}

	curLabels, err := e.label(model, current)
	if err != nil {
		return nil, err
	}
	refLabels, err := e.label(model, reference)
	if err != nil {
		return nil, err
	}
	delta, err := drift.ComparePredictions(curLabels, refLabels)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		Kind:        kind,
		Version:     model.version,
		Features:    features,
		Performance: delta,
		CheckedAt:   time.Now().UTC(),
	}
	for _, f := range features {
		if f.Drift {
			report.Drift = true
			break
		}
	}

	if report.Drift {
		e.log.Warn().
			Str("kind", kind).
			Str("version", model.version).
			Float64("agreement", delta.Agreement).
			Msg("distribution drift detected")
		subject, body := notify.DriftAlert(kind, features, delta)
		e.alert(ctx, subject, body)
	}

	e.audit(ctx, "monitor", "drift_check",
		fmt.Sprintf("kind %s version %s drift=%t", kind, model.version, report.Drift))
	return report, nil
}

// latest returns the decoded artifacts of the newest stored version for
// kind, reusing the cache when the registry still points at the same
// version.
func (e *Engine) latest(ctx context.Context, kind string) (*cachedModel, error) {
	if !registry.ValidKind(kind) {
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}

	version, err := e.store.LatestVersion(ctx, kind)
	if err != nil {
		return nil, err
	}

	if m, ok := e.cache.get(kind, version.Version); ok {
		return m, nil
	}

	art, err := DecodeArtifacts(version.Params)
	if err != nil {
		return nil, err
	}
	scaler, pca, err := art.Open()
	if err != nil {
		return nil, err
	}

	m := &cachedModel{
		version:    version.Version,
		versionID:  version.ID,
		artifacts:  art,
		scaler:     scaler,
		projection: pca,
	}
	e.cache.put(kind, m)
	return m, nil
}

// label projects a batch into the model's space and assigns segments. A
// predictor model maps each point to its nearest learned centroid; a
// density model is rebuilt from the stored parameters and re-fit on the
// batch itself.
func (e *Engine) label(m *cachedModel, rows []dataset.Row) ([]int, error) {
	scaled, err := m.scaler.Transform(rows)
	if err != nil {
		return nil, fmt.Errorf("standardize: %w", err)
	}
	projected, err := m.projection.Transform(scaled)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}

	eng, err := m.artifacts.Engine()
	if err != nil {
		return nil, err
	}
	if p, ok := eng.(cluster.Predictor); ok {
		return p.Predict(projected)
	}
	return eng.FitPredict(projected)
}

// alert sends to every configured recipient; delivery problems are
// logged, never returned.
func (e *Engine) alert(ctx context.Context, subject, body string) {
	for _, rcpt := range e.recipients {
		if err := e.notifier.Send(ctx, rcpt, subject, body); err != nil {
			e.log.Error().Str("recipient", rcpt).Err(err).Msg("alert delivery failed")
		}
	}
}

func (e *Engine) audit(ctx context.Context, actor, action, details string) {
	if err := e.store.LogAudit(ctx, actor, action, details); err != nil {
		e.log.Error().Str("action", action).Err(err).Msg("audit write failed")
	}
}
