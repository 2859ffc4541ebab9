package pipeline

import (
	"sync"

	"github.com/seglab/gosegment/pkg/preprocess"
	"github.com/seglab/gosegment/pkg/reduce"
)

// cachedModel holds the decoded artifacts of one model version. The
// scaler and projection are reusable across batches; the engine is not
// cached here because a density model must be rebuilt per batch.
type cachedModel struct {
	version    string
	versionID  uint
	artifacts  *Artifacts
	scaler     *preprocess.StandardScaler
	projection *reduce.PCA
}

// artifactCache keeps the latest decoded model per kind. A lookup is
// only valid for the version string it was stored under, so callers
// revalidate against the registry before trusting a hit.
type artifactCache struct {
	mu     sync.RWMutex
	models map[string]*cachedModel
}

func newArtifactCache() *artifactCache {
	return &artifactCache{models: make(map[string]*cachedModel)}
}

// get returns the cached model for kind when it matches version.
func (c *artifactCache) get(kind, version string) (*cachedModel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[kind]
	if !ok || m.version != version {
		return nil, false
	}
	return m, true
}

func (c *artifactCache) put(kind string, m *cachedModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[kind] = m
}
