package classify

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livingwales/vproducts/internal/compute"
	"github.com/livingwales/vproducts/internal/cube"
)

// stump splits feature 0 at 0.5: low -> class 1, high -> class 2.
const stump = `{
  "kind": "decision_tree",
  "n_features": 2,
  "classes": [1, 2],
  "trees": [{
    "children_left":  [1, -1, -1],
    "children_right": [2, -1, -1],
    "feature":        [0, -2, -2],
    "threshold":      [0.5, -2, -2],
    "value":          [[5, 5], [5, 0], [0, 5]]
  }]
}`

func forest() *Model {
	split := func(f int, th float64, low, high []float64) Tree {
		return Tree{
			ChildrenLeft:  []int{1, leaf, leaf},
			ChildrenRight: []int{2, leaf, leaf},
			Feature:       []int{f, -2, -2},
			Threshold:     []float64{th, -2, -2},
			Value:         [][]float64{{1, 1}, low, high},
		}
	}
	return &Model{
		Kind:      RandomForest,
		NFeatures: 2,
		Classes:   []float64{0, 1},
		Trees: []Tree{
			split(0, 0.5, []float64{10, 0}, []float64{0, 10}),
			split(1, 0.5, []float64{3, 1}, []float64{1, 3}),
			split(1, 0.5, []float64{4, 0}, []float64{2, 2}),
		},
	}
}

func TestParseAndPredictRow(t *testing.T) {
	t.Parallel()
	m, err := Parse(strings.NewReader(stump))
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.PredictRow([]float64{0.2, 9}))
	assert.Equal(t, 1.0, m.PredictRow([]float64{0.5, 9}), "threshold goes left")
	assert.Equal(t, 2.0, m.PredictRow([]float64{0.7, 0}))
	assert.Equal(t, 1.0, m.PredictRow([]float64{math.NaN(), 0}), "NaN reads as 0")
	assert.Equal(t, 1.0, m.PredictRow([]float64{math.Inf(1), 0}), "Inf reads as 0")
}

func TestForestAveragesProbabilities(t *testing.T) {
	t.Parallel()
	m := forest()
	require.NoError(t, m.Validate())
	// tree0 -> [0,1], tree1 -> [.75,.25], tree2 -> [1,0]: class 0 wins 1.75 to 1.25
	assert.Equal(t, 0.0, m.PredictRow([]float64{0.9, 0.1}))
	// tree0 -> [0,1], tree1 -> [.25,.75], tree2 -> [.5,.5]: class 1 wins
	assert.Equal(t, 1.0, m.PredictRow([]float64{0.9, 0.9}))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(m *Model)
	}{
		{"unknown kind", func(m *Model) { m.Kind = "svm" }},
		{"no features", func(m *Model) { m.NFeatures = 0 }},
		{"no classes", func(m *Model) { m.Classes = nil }},
		{"tree kind with forest", func(m *Model) { m.Kind = DecisionTree }},
		{"feature out of range", func(m *Model) { m.Trees[0].Feature[0] = 2 }},
		{"child loops back", func(m *Model) { m.Trees[1].ChildrenLeft[0] = 0 }},
		{"child out of range", func(m *Model) { m.Trees[1].ChildrenRight[0] = 3 }},
		{"one child", func(m *Model) { m.Trees[2].ChildrenLeft[1] = 2 }},
		{"short value", func(m *Model) { m.Trees[0].Value[2] = []float64{1} }},
		{"ragged arrays", func(m *Model) { m.Trees[0].Threshold = m.Trees[0].Threshold[:2] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := forest()
			tt.mutate(m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Parse(strings.NewReader(`{"kind":"decision_tree","pickle":"x"}`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cult.json"), []byte(stump), 0o644))

	m, err := Load("cult.json", dir)
	require.NoError(t, err)
	assert.Equal(t, DecisionTree, m.Kind)

	_, err = Load("../cult.json", dir)
	assert.Error(t, err)
	_, err = Load("missing.json", dir)
	assert.Error(t, err)
}

func TestPredict(t *testing.T) {
	t.Parallel()
	m, err := Parse(strings.NewReader(stump))
	require.NoError(t, err)
	g := cube.NewGrid(0, 30, 10, 2, 3, "EPSG:27700")
	f0, _ := cube.LayerFrom(g, []float32{0.1, 0.9, cube.NaN, 0.6, 0.4, 1})
	f1 := cube.Full(g, 0)

	ctx := compute.WithPool(context.Background(), compute.Pool{Workers: 2, ChunkRows: 1})
	out, err := m.Predict(ctx, []*cube.Layer{f0, f1})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 1, 2, 1, 2}, out.Data)
	assert.True(t, cube.IsNaN(f0.Data[2]), "features are not modified")

	_, err = m.Predict(ctx, []*cube.Layer{f0})
	assert.Error(t, err)
	_, err = m.Predict(ctx, []*cube.Layer{f0, cube.Full(cube.NewGrid(0, 30, 10, 3, 3, ""), 0)})
	assert.ErrorIs(t, err, cube.ErrGridMismatch)
}
