// Package anomaly implements the isolation forest that scores attendance scans.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/unipass-integrity-api/internal/features"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

const eulerGamma = 0.5772156649015329

// Params configures training.
type Params struct {
	MinSamples int
	Trees      int
	SampleSize int
	Seed       int64
}

// DefaultParams mirrors the production configuration defaults.
func DefaultParams() Params {
	return Params{MinSamples: 30, Trees: 100, SampleSize: 256, Seed: 42}
}

type node struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Size    int     `json:"n"`
	Left    *node   `json:"l,omitempty"`
	Right   *node   `json:"r,omitempty"`
}

func (n *node) leaf() bool {
	return n.Left == nil && n.Right == nil
}

// Model is an immutable trained forest plus its training statistics.
type Model struct {
	Version      int
	TrainedAt    time.Time
	SampleCount  int
	Importance   [features.Dimensions]float64
	Distribution models.ScoreDistribution

	sampleSize int
	mean       [features.Dimensions]float64
	std        [features.Dimensions]float64
	trees      []*node
}

// Train fits a forest over samples. It returns the context error when ctx expires mid-fit.
func Train(ctx context.Context, samples []features.Vector, p Params) (*Model, error) {
	if p.MinSamples < 2 {
		p.MinSamples = 2
	}
	if len(samples) < p.MinSamples {
		return nil, appErrors.Clone(appErrors.ErrInsufficientData,
			fmt.Sprintf("need at least %d samples to train, got %d", p.MinSamples, len(samples)))
	}
	if p.Trees <= 0 {
		p.Trees = DefaultParams().Trees
	}
	psi := p.SampleSize
	if psi <= 0 || psi > len(samples) {
		psi = len(samples)
	}

	m := &Model{SampleCount: len(samples), sampleSize: psi}
	m.fitScaler(samples)

	scaled := make([]features.Vector, len(samples))
	for i, s := range samples {
		scaled[i] = m.standardize(s)
	}

	rng := rand.New(rand.NewSource(p.Seed))
	limit := int(math.Ceil(math.Log2(float64(psi))))
	var mass [features.Dimensions]float64

	m.trees = make([]*node, 0, p.Trees)
	for t := 0; t < p.Trees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perm := rng.Perm(len(scaled))[:psi]
		subset := make([]features.Vector, psi)
		for i, idx := range perm {
			subset[i] = scaled[idx]
		}
		m.trees = append(m.trees, grow(rng, subset, 0, limit, &mass))
	}

	var total float64
	for _, v := range mass {
		total += v
	}
	if total > 0 {
		for i, v := range mass {
			m.Importance[i] = v / total
		}
	}

	scores := make([]float64, len(samples))
	for i, s := range scaled {
		scores[i] = m.scoreScaled(s)
	}
	m.Distribution = describe(scores)
	m.TrainedAt = time.Now().UTC()

	return m, nil
}

func grow(rng *rand.Rand, subset []features.Vector, depth, limit int, mass *[features.Dimensions]float64) *node {
	if depth >= limit || len(subset) <= 1 {
		return &node{Size: len(subset)}
	}

	var lo, hi [features.Dimensions]float64
	for d := 0; d < features.Dimensions; d++ {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}
	for _, s := range subset {
		for d, v := range s {
			lo[d] = math.Min(lo[d], v)
			hi[d] = math.Max(hi[d], v)
		}
	}
	candidates := make([]int, 0, features.Dimensions)
	for d := 0; d < features.Dimensions; d++ {
		if hi[d] > lo[d] {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return &node{Size: len(subset)}
	}

	feature := candidates[rng.Intn(len(candidates))]
	split := lo[feature] + rng.Float64()*(hi[feature]-lo[feature])

	left := make([]features.Vector, 0, len(subset))
	right := make([]features.Vector, 0, len(subset))
	for _, s := range subset {
		if s[feature] < split {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	mass[feature] += float64(len(subset))

	return &node{
		Feature: feature,
		Split:   split,
		Size:    len(subset),
		Left:    grow(rng, left, depth+1, limit, mass),
		Right:   grow(rng, right, depth+1, limit, mass),
	}
}

// averagePath is c(n), the expected path length of an unsuccessful BST search.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

func pathLength(n *node, v features.Vector, depth int) float64 {
	for !n.leaf() {
		if v[n.Feature] < n.Split {
			n = n.Left
		} else {
			n = n.Right
		}
		depth++
	}
	return float64(depth) + averagePath(n.Size)
}

func (m *Model) fitScaler(samples []features.Vector) {
	n := float64(len(samples))
	for _, s := range samples {
		for d, v := range s {
			m.mean[d] += v
		}
	}
	for d := range m.mean {
		m.mean[d] /= n
	}
	for _, s := range samples {
		for d, v := range s {
			diff := v - m.mean[d]
			m.std[d] += diff * diff
		}
	}
	for d := range m.std {
		m.std[d] = math.Sqrt(m.std[d] / n)
		if m.std[d] == 0 {
			m.std[d] = 1
		}
	}
}

func (m *Model) standardize(v features.Vector) features.Vector {
	var out features.Vector
	for d, x := range v {
		out[d] = (x - m.mean[d]) / m.std[d]
	}
	return out
}

// Score maps v onto [-1, 1]; values near -1 are the most anomalous.
func (m *Model) Score(v features.Vector) float64 {
	return m.scoreScaled(m.standardize(v))
}

func (m *Model) scoreScaled(v features.Vector) float64 {
	if len(m.trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range m.trees {
		sum += pathLength(t, v, 0)
	}
	mean := sum / float64(len(m.trees))

	c := averagePath(m.sampleSize)
	if c == 0 {
		return 0
	}
	s := math.Pow(2, -mean/c)
	return 1 - 2*s
}

// Deviation is the z-score of one feature against the training distribution.
type Deviation struct {
	Feature string
	Value   float64
	Z       float64
}

// Deviations returns the per-feature z-scores sorted by magnitude, largest first.
func (m *Model) Deviations(v features.Vector) []Deviation {
	z := m.standardize(v)
	out := make([]Deviation, 0, features.Dimensions)
	for d, name := range features.Names {
		out = append(out, Deviation{Feature: name, Value: v[d], Z: z[d]})
	}
	sort.SliceStable(out, func(i, j int) bool { return math.Abs(out[i].Z) > math.Abs(out[j].Z) })
	return out
}

// Explain cites the features that deviate most from the training distribution.
func (m *Model) Explain(v features.Vector) string {
	devs := m.Deviations(v)
	parts := make([]string, 0, 3)
	for _, d := range devs[:3] {
		if math.Abs(d.Z) < 1 {
			break
		}
		direction := "above"
		if d.Z < 0 {
			direction = "below"
		}
		parts = append(parts, fmt.Sprintf("%s is %.1f standard deviations %s normal (value %.2f)",
			d.Feature, math.Abs(d.Z), direction, d.Value))
	}
	if len(parts) == 0 {
		return "no single feature deviates strongly from the training distribution"
	}
	return strings.Join(parts, "; ")
}

// FeatureImportance returns the importance keyed by feature name.
func (m *Model) FeatureImportance() map[string]float64 {
	out := make(map[string]float64, features.Dimensions)
	for d, name := range features.Names {
		out[name] = m.Importance[d]
	}
	return out
}

func describe(scores []float64) models.ScoreDistribution {
	if len(scores) == 0 {
		return models.ScoreDistribution{}
	}
	stats := models.ScoreDistribution{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, s := range scores {
		stats.Mean += s
		stats.Min = math.Min(stats.Min, s)
		stats.Max = math.Max(stats.Max, s)
	}
	stats.Mean /= float64(len(scores))
	for _, s := range scores {
		diff := s - stats.Mean
		stats.Std += diff * diff
	}
	stats.Std = math.Sqrt(stats.Std / float64(len(scores)))
	return stats
}

type parameters struct {
	SampleSize int       `json:"sample_size"`
	Mean       []float64 `json:"mean"`
	Std        []float64 `json:"std"`
	Trees      []*node   `json:"trees"`
}

// MarshalParameters encodes the fitted forest.
func (m *Model) MarshalParameters() ([]byte, error) {
	return json.Marshal(parameters{
		SampleSize: m.sampleSize,
		Mean:       m.mean[:],
		Std:        m.std[:],
		Trees:      m.trees,
	})
}

// Restore rebuilds a model from persisted parameters and metadata.
func Restore(raw []byte, version, sampleCount int, trainedAt time.Time, importance map[string]float64, dist models.ScoreDistribution) (*Model, error) {
	var p parameters
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode model parameters: %w", err)
	}
	if len(p.Mean) != features.Dimensions || len(p.Std) != features.Dimensions || len(p.Trees) == 0 {
		return nil, fmt.Errorf("model parameters malformed")
	}

	m := &Model{
		Version:      version,
		TrainedAt:    trainedAt,
		SampleCount:  sampleCount,
		Distribution: dist,
		sampleSize:   p.SampleSize,
		trees:        p.Trees,
	}
	copy(m.mean[:], p.Mean)
	copy(m.std[:], p.Std)
	for d, name := range features.Names {
		m.Importance[d] = importance[name]
	}
	return m, nil
}

// Info returns the public metadata of the model.
func (m *Model) Info() *models.ModelInfo {
	return &models.ModelInfo{
		ModelVersion:      m.Version,
		TrainedAt:         m.TrainedAt,
		SampleCount:       m.SampleCount,
		FeatureImportance: m.FeatureImportance(),
		ScoreDistribution: m.Distribution,
	}
}
