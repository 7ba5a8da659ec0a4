package prediction

import (
	"fmt"
	"sort"

	"github.com/aristath/skinsentinel/pkg/formulas"
)

// GBRTParams controls gradient boosting.
type GBRTParams struct {
	Stages         int     `msgpack:"stages"`
	LearningRate   float64 `msgpack:"learning_rate"`
	MaxDepth       int     `msgpack:"max_depth"`
	MinSamplesLeaf int     `msgpack:"min_samples_leaf"`
}

// DefaultGBRTParams returns 100 stages of depth-3 trees at learning rate 0.1.
func DefaultGBRTParams() GBRTParams {
	return GBRTParams{
		Stages:         100,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 2,
	}
}

// TreeNode is one node of a flattened regression tree.
type TreeNode struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Value     float64 `msgpack:"v"`
	Leaf      bool    `msgpack:"leaf"`
}

// Tree is a regression tree stored as a node slice rooted at index 0.
type Tree struct {
	Nodes []TreeNode `msgpack:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GradientBoosting is a least-squares gradient-boosted ensemble of regression trees.
type GradientBoosting struct {
	Params      GBRTParams `msgpack:"params"`
	Init        float64    `msgpack:"init"`
	Trees       []Tree     `msgpack:"trees"`
	NumFeatures int        `msgpack:"num_features"`
}

// NewGradientBoosting creates an unfitted ensemble.
func NewGradientBoosting(params GBRTParams) *GradientBoosting {
	return &GradientBoosting{Params: params}
}

// Fit trains the ensemble on rows X and targets y. Split search is exhaustive
// and stable, so equal inputs always produce equal trees.
func (g *GradientBoosting) Fit(X [][]float64, y []float64) error {
	d, err := checkTrainingSet(X, y)
	if err != nil {
		return err
	}

	n := len(y)
	g.NumFeatures = d
	g.Init = formulas.Mean(y)
	g.Trees = make([]Tree, 0, g.Params.Stages)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.Init
	}
	residuals := make([]float64, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for stage := 0; stage < g.Params.Stages; stage++ {
		for i := range residuals {
			residuals[i] = y[i] - pred[i]
		}
		b := treeBuilder{X: X, r: residuals, params: g.Params, d: d}
		b.build(all, 0)
		tree := Tree{Nodes: b.nodes}
		for i := range pred {
			pred[i] += g.Params.LearningRate * tree.predict(X[i])
		}
		g.Trees = append(g.Trees, tree)
	}
	return nil
}

// PredictVector evaluates the ensemble. Short vectors fall back to the initial estimate.
func (g *GradientBoosting) PredictVector(x []float64) float64 {
	if len(x) < g.NumFeatures {
		return g.Init
	}
	out := g.Init
	for _, t := range g.Trees {
		out += g.Params.LearningRate * t.predict(x)
	}
	return out
}

// validate checks that every split references a feature below NumFeatures and
// that child indices point forward inside the node slice.
func (g *GradientBoosting) validate(numFeatures int) error {
	if g.NumFeatures != numFeatures {
		return fmt.Errorf("gradient boosting expects %d features, want %d", g.NumFeatures, numFeatures)
	}
	for ti, t := range g.Trees {
		for i, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= g.NumFeatures {
				return fmt.Errorf("tree %d node %d splits on feature %d of %d", ti, i, n.Feature, g.NumFeatures)
			}
			if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has children %d/%d outside (%d, %d)", ti, i, n.Left, n.Right, i, len(t.Nodes))
			}
		}
	}
	return nil
}

type treeBuilder struct {
	X      [][]float64
	r      []float64
	params GBRTParams
	d      int
	nodes  []TreeNode
}

// build appends the subtree for idx and returns its node index.
func (b *treeBuilder) build(idx []int, depth int) int {
	sum := 0.0
	for _, i := range idx {
		sum += b.r[i]
	}
	value := sum / float64(len(idx))

	self := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Leaf: true, Value: value})

	minLeaf := b.params.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}
	if depth >= b.params.MaxDepth || len(idx) < 2*minLeaf {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx, sum, minLeaf)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return self
}

// bestSplit maximizes sumL²/nL + sumR²/nR, which minimizes the squared error of the children.
func (b *treeBuilder) bestSplit(idx []int, total float64, minLeaf int) (int, float64, bool) {
	n := len(idx)
	bestScore := total * total / float64(n)
	bestFeature := -1
	bestThreshold := 0.0

	sorted := make([]int, n)
	for f := 0; f < b.d; f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X[sorted[a]][f] < b.X[sorted[c]][f]
		})

		sumLeft := 0.0
		for k := 1; k < n; k++ {
			sumLeft += b.r[sorted[k-1]]
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo := b.X[sorted[k-1]][f]
			hi := b.X[sorted[k]][f]
			if lo == hi {
				continue
			}
			sumRight := total - sumLeft
			score := sumLeft*sumLeft/float64(k) + sumRight*sumRight/float64(n-k)
			if score > bestScore+1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func checkTrainingSet(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("empty training set")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("training set has %d rows but %d targets", len(X), len(y))
	}
	d := len(X[0])
	if d == 0 {
		return 0, fmt.Errorf("training rows have no features")
	}
	for i, row := range X {
		if len(row) != d {
			return 0, fmt.Errorf("training row %d has %d features, want %d", i, len(row), d)
		}
	}
	return d, nil
}
