package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/seglab/gosegment/pkg/dataset"
	"github.com/seglab/gosegment/pkg/registry"
)

// rowPayload is one customer record on the wire.
type rowPayload struct {
	CustomerID int                `json:"customer_id"`
	Features   map[string]float64 `json:"features" binding:"required"`
}

type trainRequest struct {
	Rows []rowPayload `json:"rows" binding:"required,min=1"`
}

type predictRequest struct {
	Rows []rowPayload `json:"rows" binding:"required,min=1"`
}

type driftRequest struct {
	Current   []rowPayload `json:"current" binding:"required,min=1"`
	Reference []rowPayload `json:"reference" binding:"required,min=1"`
}

func toRows(payload []rowPayload) []dataset.Row {
	rows := make([]dataset.Row, len(payload))
	for i, p := range payload {
		rows[i] = dataset.Row{CustomerID: p.CustomerID, Fields: p.Features}
	}
	return rows
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "gosegment",
		"status":  "ok",
		"models":  registry.Kinds,
	})
}

func (s *Server) handleListModels(c *gin.Context) {
	out := make([]gin.H, 0, len(registry.Kinds))
	for _, kind := range registry.Kinds {
		entry := gin.H{"kind": kind, "trained": false}
		version, err := s.reg.LatestVersion(c.Request.Context(), kind)
		switch {
		case err == nil:
			entry["trained"] = true
			entry["version"] = version.Version
			entry["silhouette"] = version.Silhouette
			entry["created_at"] = version.CreatedAt
		case errors.Is(err, registry.ErrVersionNotFound):
			// untrained kind, report as such
		default:
			s.fail(c, err)
			return
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

func (s *Server) handleModelStatus(c *gin.Context) {
	kind := c.Param("kind")
	if !registry.ValidKind(kind) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown model kind " + kind})
		return
	}

	version, err := s.reg.LatestVersion(c.Request.Context(), kind)
	if errors.Is(err, registry.ErrVersionNotFound) {
		c.JSON(http.StatusOK, gin.H{"kind": kind, "trained": false})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":       kind,
		"trained":    true,
		"version":    version.Version,
		"run_id":     version.RunID,
		"silhouette": version.Silhouette,
		"created_by": version.CreatedBy,
		"created_at": version.CreatedAt,
	})
}

func (s *Server) handleTrain(c *gin.Context) {
	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.engine.Train(c.Request.Context(), toRows(req.Rows), s.actor(c))
	if err != nil {
		var missing *dataset.MissingFeatureError
		if errors.As(err, &missing) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}

	versions := make(map[string]string, len(result.Versions))
	for kind, v := range result.Versions {
		versions[kind] = v.Version
	}
	c.JSON(http.StatusCreated, gin.H{
		"run_id":             result.RunID,
		"samples":            result.Samples,
		"versions":           versions,
		"silhouettes":        result.Silhouettes,
		"explained_variance": result.ExplainedVariance,
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	kind := c.Param("kind")
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	segments, version, err := s.engine.Predict(c.Request.Context(), kind, toRows(req.Rows))
	if err != nil {
		s.predictionError(c, kind, err)
		return
	}

	if err := s.reg.LogAudit(c.Request.Context(), s.actor(c), "predict",
		fmt.Sprintf("kind %s version %s batch %d", kind, version, len(segments))); err != nil {
		s.log.Error().Err(err).Msg("audit write failed")
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":     kind,
		"version":  version,
		"segments": segments,
	})
}

func (s *Server) handleDriftCheck(c *gin.Context) {
	kind := c.Param("kind")
	var req driftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.engine.CheckHealth(c.Request.Context(), kind,
		toRows(req.Current), toRows(req.Reference))
	if err != nil {
		s.predictionError(c, kind, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSegments(c *gin.Context) {
	kind := c.Param("kind")
	if !registry.ValidKind(kind) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown model kind " + kind})
		return
	}

	version, err := s.reg.LatestVersion(c.Request.Context(), kind)
	if errors.Is(err, registry.ErrVersionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trained model for " + kind})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	segments, err := s.reg.Segments(c.Request.Context(), version.ID, s.limit(c, 0))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":     kind,
		"version":  version.Version,
		"count":    len(segments),
		"segments": segments,
	})
}

func (s *Server) handleAuditLog(c *gin.Context) {
	entries, err := s.reg.AuditLog(c.Request.Context(), s.limit(c, 100))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// predictionError maps engine errors on the read path to status codes.
func (s *Server) predictionError(c *gin.Context, kind string, err error) {
	var missing *dataset.MissingFeatureError
	switch {
	case errors.Is(err, registry.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no trained model for " + kind})
	case errors.As(err, &missing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case !registry.ValidKind(kind):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown model kind " + kind})
	default:
		s.fail(c, err)
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// actor identifies the caller for audit purposes. With single-key auth
// there is one logical API identity.
func (s *Server) actor(c *gin.Context) string {
	if v := c.GetHeader("X-Actor"); v != "" {
		return v
	}
	return "api"
}

func (s *Server) limit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
