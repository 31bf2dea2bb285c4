package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Package cluster groups samples into behavior clusters using a small-N
// Lloyd's-algorithm K-means over standardized feature vectors.
//
// Feature vector per sample (7 dimensions):
//   [focus, posture, screen_time, presence, smartphone, hour/24, weekday/7]
//
// The empty-cluster policy keeps the previous center rather than
// re-seeding. On small or skewed data that can produce degenerate
// clusters; the EmptyClusterStrategy hook lets a stricter policy be
// substituted without changing the public contract.

const featureDim = 7

// EmptyClusterStrategy decides the new center for a cluster that received
// no assignments in an iteration.
type EmptyClusterStrategy interface {
	// Recenter returns the replacement center for empty cluster k.
	Recenter(k int, previous []float64, features [][]float64, assignments []int) []float64
}

// KeepCenterStrategy retains the previous center. This mirrors the
// reference behavior and is the default.
type KeepCenterStrategy struct{}

func (KeepCenterStrategy) Recenter(k int, previous []float64, features [][]float64, assignments []int) []float64 {
	return previous
}

// FarthestPointStrategy re-seeds an empty cluster from the point farthest
// from its currently assigned center.
type FarthestPointStrategy struct{}

func (FarthestPointStrategy) Recenter(k int, previous []float64, features [][]float64, assignments []int) []float64 {
	bestDist := -1.0
	best := previous
	for i, f := range features {
		c := assignments[i]
		if c == k {
			continue
		}
		d := squaredDistance(f, previous)
		if d > bestDist {
			bestDist = d
			best = f
		}
	}
	out := make([]float64, len(best))
	copy(out, best)
	return out
}

// Config holds clustering parameters.
type Config struct {
	MaxIterations int
	Tolerance     float64
	Seed          int64
	Strategy      EmptyClusterStrategy
}

// DefaultConfig returns the standard K-means parameters with a fixed seed
// so repeated runs over the same input produce identical assignments.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 100,
		Tolerance:     1e-4,
		Seed:          1,
		Strategy:      KeepCenterStrategy{},
	}
}

// Clusterer runs K-means over sample feature vectors.
type Clusterer struct {
	cfg Config
}

// NewClusterer creates a clusterer. Invalid parameters fail at
// construction.
func NewClusterer(cfg Config) (*Clusterer, error) {
	if cfg.MaxIterations < 1 {
		return nil, fmt.Errorf("max_iterations must be at least 1, got %d", cfg.MaxIterations)
	}
	if cfg.Tolerance <= 0 {
		return nil, fmt.Errorf("tolerance must be positive, got %g", cfg.Tolerance)
	}
	if cfg.Strategy == nil {
		cfg.Strategy = KeepCenterStrategy{}
	}
	return &Clusterer{cfg: cfg}, nil
}

// Cluster groups samples into k behavior clusters. Fewer samples than k is
// an insufficient-data condition: an empty slice is returned, not an error.
func (c *Clusterer) Cluster(samples []models.Sample, k int) []models.BehaviorCluster {
	if k < 1 || len(samples) < k {
		return []models.BehaviorCluster{}
	}

	features := make([][]float64, len(samples))
	for i, s := range samples {
		features[i] = featureVector(s)
	}

	means, stds := standardize(features)

	// A fresh seeded RNG per call keeps Cluster a pure function of its
	// input: repeated calls on one instance, or concurrent calls, see the
	// same initial centers for the same samples.
	rng := rand.New(rand.NewSource(c.cfg.Seed))
	centers := initialCenters(rng, features, k)
	assignments := make([]int, len(features))

	for iter := 0; iter < c.cfg.MaxIterations; iter++ {
		for i, f := range features {
			assignments[i] = nearest(f, centers)
		}

		moved := 0.0
		for j := range centers {
			sum := make([]float64, featureDim)
			count := 0
			for i, f := range features {
				if assignments[i] != j {
					continue
				}
				for d := range sum {
					sum[d] += f[d]
				}
				count++
			}

			var next []float64
			if count == 0 {
				next = c.cfg.Strategy.Recenter(j, centers[j], features, assignments)
			} else {
				next = make([]float64, featureDim)
				for d := range next {
					next[d] = sum[d] / float64(count)
				}
			}
			moved += math.Sqrt(squaredDistance(centers[j], next))
			centers[j] = next
		}

		if moved < c.cfg.Tolerance {
			break
		}
	}

	return c.describe(samples, features, centers, assignments, means, stds)
}

// initialCenters picks k distinct random samples as starting centers.
func initialCenters(rng *rand.Rand, features [][]float64, k int) [][]float64 {
	perm := rng.Perm(len(features))
	centers := make([][]float64, k)
	for j := 0; j < k; j++ {
		center := make([]float64, featureDim)
		copy(center, features[perm[j]])
		centers[j] = center
	}
	return centers
}

// describe converts the raw assignment into BehaviorCluster records, with
// centers reported in original (de-standardized) feature space.
func (c *Clusterer) describe(samples []models.Sample, features [][]float64, centers [][]float64, assignments []int, means, stds []float64) []models.BehaviorCluster {
	clusters := make([]models.BehaviorCluster, 0, len(centers))
	for j, center := range centers {
		size := 0
		variance := 0.0
		periods := make([]time.Time, 0)
		smartphone := 0
		for i := range features {
			if assignments[i] != j {
				continue
			}
			size++
			variance += squaredDistance(features[i], center)
			periods = append(periods, samples[i].Timestamp)
			if samples[i].SmartphoneDetected {
				smartphone++
			}
		}
		if size > 0 {
			variance /= float64(size)
		}

		raw := destandardize(center, means, stds)
		smartphoneRate := 0.0
		if size > 0 {
			smartphoneRate = float64(smartphone) / float64(size)
		}

		clusters = append(clusters, models.BehaviorCluster{
			ClusterID:   j,
			ClusterType: classify(raw[0], smartphoneRate),
			Center:      raw,
			Size:        size,
			Variance:    variance,
			TimePeriods: periods,
		})
	}
	return clusters
}

// classify derives the cluster type from the center's focus component,
// splitting low-focus clusters by smartphone usage rate.
func classify(focusCenter, smartphoneRate float64) models.ClusterType {
	switch {
	case focusCenter >= 0.7:
		return models.ClusterDeepFocus
	case focusCenter >= 0.4:
		return models.ClusterNormalWork
	case smartphoneRate >= 0.3:
		return models.ClusterDistracted
	default:
		return models.ClusterBreakTime
	}
}

// featureVector builds the 7-dimension feature vector for one sample.
// Missing scores contribute 0.
func featureVector(s models.Sample) []float64 {
	focus := 0.0
	if s.FocusScore != nil {
		focus = models.Clamp01(*s.FocusScore)
	}
	posture := 0.0
	if s.PostureScore != nil {
		posture = models.Clamp01(*s.PostureScore)
	}
	presence := 0.0
	if s.Presence == models.PresencePresent {
		presence = 1.0
	}
	phone := 0.0
	if s.SmartphoneDetected {
		phone = 1.0
	}
	return []float64{
		focus,
		posture,
		s.ScreenTime,
		presence,
		phone,
		float64(s.Timestamp.Hour()) / 24.0,
		float64(s.Timestamp.Weekday()) / 7.0,
	}
}

// standardize converts features in place to zero mean and unit variance per
// dimension, guarding against zero std, and returns the means and stds for
// later de-standardization.
func standardize(features [][]float64) (means, stds []float64) {
	means = make([]float64, featureDim)
	stds = make([]float64, featureDim)
	n := float64(len(features))

	for d := 0; d < featureDim; d++ {
		for _, f := range features {
			means[d] += f[d]
		}
		means[d] /= n
	}
	for d := 0; d < featureDim; d++ {
		for _, f := range features {
			diff := f[d] - means[d]
			stds[d] += diff * diff
		}
		stds[d] = math.Sqrt(stds[d] / n)
		if stds[d] == 0 {
			stds[d] = 1
		}
	}
	for _, f := range features {
		for d := 0; d < featureDim; d++ {
			f[d] = (f[d] - means[d]) / stds[d]
		}
	}
	return means, stds
}

func destandardize(center, means, stds []float64) []float64 {
	raw := make([]float64, len(center))
	for d := range center {
		raw[d] = center[d]*stds[d] + means[d]
	}
	return raw
}

func nearest(f []float64, centers [][]float64) int {
	best := 0
	bestDist := math.MaxFloat64
	for j, c := range centers {
		if d := squaredDistance(f, c); d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
