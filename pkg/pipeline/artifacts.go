package pipeline

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/seglab/gosegment/pkg/cluster"
	"github.com/seglab/gosegment/pkg/cluster/dbscan"
	"github.com/seglab/gosegment/pkg/cluster/kmeans"
	"github.com/seglab/gosegment/pkg/preprocess"
	"github.com/seglab/gosegment/pkg/reduce"
	"github.com/seglab/gosegment/pkg/registry"
)

// Artifacts bundles every serialized component of one training run. The
// scaler, the projection and the model always come from the same fit, so
// a batch transformed by the bundle sees exactly the feature space the
// model was trained in.
type Artifacts struct {
	RunID      string
	Kind       string
	Features   []string
	Scaler     []byte
	Projection []byte
	Model      []byte
}

// Encode serializes the bundle for storage as a model version's params.
func (a *Artifacts) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, fmt.Errorf("encode artifacts: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeArtifacts restores a bundle previously produced by Encode.
func DecodeArtifacts(data []byte) (*Artifacts, error) {
	a := &Artifacts{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(a); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	if a.RunID == "" || len(a.Scaler) == 0 || len(a.Projection) == 0 || len(a.Model) == 0 {
		return nil, fmt.Errorf("decode artifacts: incomplete bundle for kind %q", a.Kind)
	}
	if !registry.ValidKind(a.Kind) {
		return nil, fmt.Errorf("decode artifacts: unknown model kind %q", a.Kind)
	}
	return a, nil
}

// Open materializes the bundled scaler and projection.
func (a *Artifacts) Open() (*preprocess.StandardScaler, *reduce.PCA, error) {
	scaler := preprocess.NewStandardScaler(a.Features)
	if err := scaler.Load(a.Scaler); err != nil {
		return nil, nil, fmt.Errorf("open scaler: %w", err)
	}
	pca := reduce.New(0)
	if err := pca.Load(a.Projection); err != nil {
		return nil, nil, fmt.Errorf("open projection: %w", err)
	}
	return scaler, pca, nil
}

// Engine materializes a fresh engine from the bundled model bytes. A
// density engine comes back unfitted and must be fit on the batch at
// hand; a partitioning engine comes back ready to predict.
func (a *Artifacts) Engine() (cluster.Engine, error) {
	var eng cluster.Engine
	switch a.Kind {
	case registry.KindKMeans:
		eng = kmeans.New(1)
	case registry.KindDBSCAN:
		eng = dbscan.New(1, 1)
	default:
		return nil, fmt.Errorf("unknown model kind %q", a.Kind)
	}
	if err := eng.Load(a.Model); err != nil {
		return nil, fmt.Errorf("open %s model: %w", a.Kind, err)
	}
	return eng, nil
}
