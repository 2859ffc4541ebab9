package cluster

import (
	"errors"
	"fmt"
	"math"
)

// Silhouette computes the mean silhouette coefficient of a clustering, a
// score in [-1, 1] comparing intra-cluster cohesion to nearest-cluster
// separation. Noise points are excluded from the computation entirely;
// including the noise label as a cluster would inflate or deflate the
// score arbitrarily.
//
// At least two distinct non-noise clusters are required.
func Silhouette(data [][]float64, labels []int) (float64, error) {
	if len(data) != len(labels) {
		return 0, fmt.Errorf("got %d samples but %d labels", len(data), len(labels))
	}

	// Collect non-noise points per cluster.
	clusters := make(map[int][]int)
	for i, l := range labels {
		if l == Noise {
			continue
		}
		clusters[l] = append(clusters[l], i)
	}
	if len(clusters) < 2 {
		return 0, errors.New("silhouette requires at least 2 clusters")
	}

	var total float64
	var count int
	for own, members := range clusters {
		for _, i := range members {
			a := meanDistance(data, i, members)

			b := math.MaxFloat64
			for other, otherMembers := range clusters {
				if other == own {
					continue
				}
				if d := meanDistance(data, i, otherMembers); d < b {
					b = d
				}
			}

			// Singleton clusters contribute 0 by convention.
			s := 0.0
			if len(members) > 1 {
				if m := math.Max(a, b); m > 0 {
					s = (b - a) / m
				}
			}
			total += s
			count++
		}
	}

	return total / float64(count), nil
}

// meanDistance returns the mean Euclidean distance from point i to the
// listed members, excluding i itself.
func meanDistance(data [][]float64, i int, members []int) float64 {
	var sum float64
	var n int
	for _, j := range members {
		if j == i {
			continue
		}
		sum += math.Sqrt(SquaredDistance(data[i], data[j]))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// SquaredDistance returns the squared Euclidean distance between two
// vectors of equal length.
func SquaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
