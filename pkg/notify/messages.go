package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/seglab/gosegment/pkg/drift"
)

// DriftAlert builds the notification sent when a model health check
// detects distribution drift.
func DriftAlert(kind string, reports []drift.FeatureDrift, delta drift.PerformanceDelta) (subject, body string) {
	subject = fmt.Sprintf("Model Drift Alert - %s", kind)

	var b strings.Builder
	fmt.Fprintf(&b, "Model drift has been detected.\n\n")
	fmt.Fprintf(&b, "Model kind: %s\n", kind)
	fmt.Fprintf(&b, "Timestamp:  %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Drifting features:\n")
	for _, r := range reports {
		if !r.Drift {
			continue
		}
		fmt.Fprintf(&b, "  %-24s ks=%.4f p=%.4g wasserstein=%.4f\n",
			r.Feature, r.KSStatistic, r.PValue, r.Wasserstein)
	}
	fmt.Fprintf(&b, "\nPrediction agreement:      %.4f\n", delta.Agreement)
	fmt.Fprintf(&b, "Distribution discrepancy:  %.4f\n", delta.DistributionDistance)

	return subject, b.String()
}

// TrainingComplete builds the notification sent when a training run
// finishes.
func TrainingComplete(kind, version string, silhouette float64) (subject, body string) {
	subject = fmt.Sprintf("Model Training Complete - %s", kind)
	body = fmt.Sprintf(
		"Model training has been completed successfully.\n\n"+
			"Model kind: %s\nVersion:    %s\nSilhouette: %.4f\nTimestamp:  %s\n",
		kind, version, silhouette, time.Now().UTC().Format(time.RFC3339))
	return subject, body
}

// HealthCheckFailure builds the alert sent when a monitoring run itself
// fails. Monitoring failures are operationally significant, so the alert
// is attempted even though the check returns an error.
func HealthCheckFailure(kind string, err error) (subject, body string) {
	subject = "System Alert - Model Health Check Error"
	body = fmt.Sprintf(
		"A model health check failed.\n\n"+
			"Model kind: %s\nTimestamp:  %s\n\nError:\n%v\n",
		kind, time.Now().UTC().Format(time.RFC3339), err)
	return subject, body
}
