// Package classify loads tree-ensemble classifiers exported from scikit-learn
// as JSON and predicts a class for every pixel of a feature stack.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/livingwales/vproducts/internal/compute"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/security"
)

// Model kinds.
const (
	RandomForest = "random_forest"
	DecisionTree = "decision_tree"
)

// leaf marks a node without children, as in the exported tree arrays.
const leaf = -1

// maxModelSize bounds model files read from disk.
const maxModelSize = 256 << 20

// Tree is one fitted decision tree in array form. Node i splits on
// Feature[i] at Threshold[i]: values <= the threshold go to ChildrenLeft[i].
// Value[i] holds the class weights observed at the node.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// Model is a decision tree or a random forest over NFeatures inputs.
type Model struct {
	Kind      string    `json:"kind"`
	NFeatures int       `json:"n_features"`
	Classes   []float64 `json:"classes"`
	Trees     []Tree    `json:"trees"`
}

// Load reads and validates a model file that must live under modelDir.
// Relative paths are resolved against modelDir.
func Load(path, modelDir string) (*Model, error) {
	resolved, err := security.ValidateModelPath(path, modelDir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat model: %w", err)
	}
	if info.Size() > maxModelSize {
		return nil, fmt.Errorf("model file too large: %d bytes (max %d)", info.Size(), maxModelSize)
	}
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", resolved, err)
	}
	return m, nil
}

// Parse decodes and validates a JSON model.
func Parse(r io.Reader) (*Model, error) {
	var m Model
	dec := json.NewDecoder(io.LimitReader(r, maxModelSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the model structure so prediction cannot index out of
// range or loop.
func (m *Model) Validate() error {
	switch m.Kind {
	case RandomForest:
		if len(m.Trees) == 0 {
			return fmt.Errorf("random forest has no trees")
		}
	case DecisionTree:
		if len(m.Trees) != 1 {
			return fmt.Errorf("decision tree model must hold exactly one tree, got %d", len(m.Trees))
		}
	default:
		return fmt.Errorf("unknown model kind %q", m.Kind)
	}
	if m.NFeatures <= 0 {
		return fmt.Errorf("n_features must be positive, got %d", m.NFeatures)
	}
	if len(m.Classes) == 0 {
		return fmt.Errorf("model has no classes")
	}
	for ti, t := range m.Trees {
		if err := t.validate(m.NFeatures, len(m.Classes)); err != nil {
			return fmt.Errorf("tree %d: %w", ti, err)
		}
	}
	return nil
}

func (t Tree) validate(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		if len(t.Value[i]) != nClasses {
			return fmt.Errorf("node %d has %d class weights for %d classes", i, len(t.Value[i]), nClasses)
		}
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf || r == leaf {
			if l != r {
				return fmt.Errorf("node %d has one child", i)
			}
			continue
		}
		// children always follow their parent, which rules out cycles
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d has children %d, %d outside (%d, %d)", i, l, r, i, n)
		}
		if f := t.Feature[i]; f < 0 || f >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d of %d", i, f, nFeatures)
		}
	}
	return nil
}

// leafValue walks x down the tree and returns the reached leaf's weights.
func (t Tree) leafValue(x []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// PredictRow returns the class for one feature vector. A forest averages the
// normalised class weights of its trees; ties go to the first class.
// Non-finite features are treated as 0.
func (m *Model) PredictRow(x []float64) float64 {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			x[i] = 0
		}
	}
	proba := make([]float64, len(m.Classes))
	for _, t := range m.Trees {
		v := t.leafValue(x)
		total := 0.0
		for _, w := range v {
			total += w
		}
		for c, w := range v {
			if total > 0 {
				proba[c] += w / total
			}
		}
	}
	best := 0
	for c := range proba {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return m.Classes[best]
}

// Predict classifies every pixel of the feature layers, which must share a
// grid and match the model's feature count. Rows are predicted in parallel
// chunks.
func (m *Model) Predict(ctx context.Context, features []*cube.Layer) (*cube.Layer, error) {
	if len(features) != m.NFeatures {
		return nil, fmt.Errorf("model expects %d features, got %d", m.NFeatures, len(features))
	}
	g := features[0].Grid
	for i, f := range features[1:] {
		if !g.Equal(f.Grid) {
			return nil, fmt.Errorf("feature %d: %w", i+1, cube.ErrGridMismatch)
		}
	}
	out := &cube.Layer{Grid: g, Data: make([]float32, g.Len())}
	w := g.Width()
	err := compute.Rows(ctx, g.Height(), func(r0, r1 int) error {
		x := make([]float64, len(features))
		for i := r0 * w; i < r1*w; i++ {
			for k, f := range features {
				x[k] = float64(f.Data[i])
			}
			out.Data[i] = float32(m.PredictRow(x))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
