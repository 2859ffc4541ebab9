// Package drift provides statistical comparison of a live data batch
// against a reference batch, per feature, and agreement scoring between
// prediction batches.
package drift

import (
	"fmt"
	"math"
	"sort"
)

// DefaultAlpha is the default significance threshold: differences with a
// p-value below it are flagged as drift.
const DefaultAlpha = 0.05

// FeatureDrift is the per-feature statistic bundle of one comparison.
type FeatureDrift struct {
	Feature     string  `json:"feature"`
	KSStatistic float64 `json:"ks_statistic"`
	PValue      float64 `json:"p_value"`
	Wasserstein float64 `json:"wasserstein_distance"`
	Drift       bool    `json:"drift_detected"`
}

// PerformanceDelta summarizes how two aligned prediction batches differ.
type PerformanceDelta struct {
	// Agreement is the fraction of aligned indices with equal labels.
	Agreement float64 `json:"agreement"`
	// DistributionDistance is the L1 distance between the normalized
	// label-frequency histograms of the two batches.
	DistributionDistance float64 `json:"distribution_difference"`
}

// MisalignedBatchError reports prediction batches whose lengths differ,
// so labels cannot be compared index by index.
type MisalignedBatchError struct {
	Current   int
	Reference int
}

func (e *MisalignedBatchError) Error() string {
	return fmt.Sprintf("misaligned batches: %d current vs %d reference labels",
		e.Current, e.Reference)
}

// CompareDistributions runs a two-sample Kolmogorov-Smirnov test and
// computes the Wasserstein distance for every listed feature. A feature
// drifts when its p-value falls below alpha. Either every feature is
// reported or the comparison fails; partial results are never returned.
func CompareDistributions(current, reference map[string][]float64, features []string, alpha float64) ([]FeatureDrift, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("invalid significance threshold %v", alpha)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no features to compare")
	}

	out := make([]FeatureDrift, 0, len(features))
	for _, f := range features {
		cur, ok := current[f]
		if !ok || len(cur) == 0 {
			return nil, fmt.Errorf("feature %q absent from current batch", f)
		}
		ref, ok := reference[f]
		if !ok || len(ref) == 0 {
			return nil, fmt.Errorf("feature %q absent from reference batch", f)
		}

		stat, p := KolmogorovSmirnov(cur, ref)
		out = append(out, FeatureDrift{
			Feature:     f,
			KSStatistic: stat,
			PValue:      p,
			Wasserstein: Wasserstein(cur, ref),
			Drift:       p < alpha,
		})
	}
	return out, nil
}

// ComparePredictions scores the agreement between two aligned label
// sequences and the discrepancy of their label distributions.
func ComparePredictions(current, reference []int) (PerformanceDelta, error) {
	if len(current) != len(reference) {
		return PerformanceDelta{}, &MisalignedBatchError{
			Current:   len(current),
			Reference: len(reference),
		}
	}
	if len(current) == 0 {
		return PerformanceDelta{}, fmt.Errorf("empty prediction batches")
	}

	matches := 0
	for i := range current {
		if current[i] == reference[i] {
			matches++
		}
	}

	return PerformanceDelta{
		Agreement:            float64(matches) / float64(len(current)),
		DistributionDistance: histogramDistance(current, reference),
	}, nil
}

// histogramDistance is the L1 distance between normalized label-frequency
// histograms. Labels are histogrammed by value, so the density engines'
// -1 noise label is an ordinary bin.
func histogramDistance(current, reference []int) float64 {
	curHist := make(map[int]float64)
	refHist := make(map[int]float64)
	for _, l := range current {
		curHist[l] += 1.0 / float64(len(current))
	}
	for _, l := range reference {
		refHist[l] += 1.0 / float64(len(reference))
	}

	var dist float64
	for l, c := range curHist {
		dist += math.Abs(c - refHist[l])
	}
	for l, r := range refHist {
		if _, seen := curHist[l]; !seen {
			dist += r
		}
	}
	return dist
}

// KolmogorovSmirnov computes the two-sample KS statistic and its
// two-sided asymptotic p-value.
func KolmogorovSmirnov(a, b []float64) (statistic, pValue float64) {
	as := sortedCopy(a)
	bs := sortedCopy(b)

	na, nb := len(as), len(bs)
	var i, j int
	var d float64
	for i < na && j < nb {
		v := math.Min(as[i], bs[j])
		for i < na && as[i] <= v {
			i++
		}
		for j < nb && bs[j] <= v {
			j++
		}
		diff := math.Abs(float64(i)/float64(na) - float64(j)/float64(nb))
		if diff > d {
			d = diff
		}
	}

	ne := float64(na) * float64(nb) / float64(na+nb)
	lambda := (math.Sqrt(ne) + 0.12 + 0.11/math.Sqrt(ne)) * d
	return d, kolmogorovQ(lambda)
}

// kolmogorovQ is the asymptotic survival function of the Kolmogorov
// distribution: Q(lambda) = 2 * sum_{j>=1} (-1)^(j-1) * exp(-2 j^2 lambda^2).
func kolmogorovQ(lambda float64) float64 {
	if lambda < 1e-8 {
		return 1
	}

	sum := 0.0
	sign := 1.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(-2*float64(j*j)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}

	q := 2 * sum
	switch {
	case q < 0:
		return 0
	case q > 1:
		return 1
	default:
		return q
	}
}

// Wasserstein computes the first Wasserstein (earth mover's) distance
// between two one-dimensional samples via their empirical CDFs.
func Wasserstein(a, b []float64) float64 {
	as := sortedCopy(a)
	bs := sortedCopy(b)

	all := make([]float64, 0, len(as)+len(bs))
	all = append(all, as...)
	all = append(all, bs...)
	sort.Float64s(all)

	var dist float64
	var i, j int
	for k := 0; k < len(all)-1; k++ {
		for i < len(as) && as[i] <= all[k] {
			i++
		}
		for j < len(bs) && bs[j] <= all[k] {
			j++
		}
		cdfA := float64(i) / float64(len(as))
		cdfB := float64(j) / float64(len(bs))
		dist += math.Abs(cdfA-cdfB) * (all[k+1] - all[k])
	}
	return dist
}

func sortedCopy(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	sort.Float64s(out)
	return out
}
