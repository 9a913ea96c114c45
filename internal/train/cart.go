package train

import (
	"math"
	"math/rand"

	"mailscore/internal/model"
)

// treeConfig bounds a single regression tree fit.
type treeConfig struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
}

// treeBuilder grows one variance-reduction regression tree over the sample
// indices it is given. Node values are subsample means, which doubles as the
// cover-weighted expected output the exact attribution strategy needs; gains
// accumulate per feature for the importance vector.
type treeBuilder struct {
	x     [][]float64
	y     []float64
	cfg   treeConfig
	nodes []model.Node
	gains []float64
}

func fitTree(x [][]float64, y []float64, columns int, cfg treeConfig, gains []float64) model.Tree {
	b := &treeBuilder{x: x, y: y, cfg: cfg, gains: gains}
	indices := make([]int, len(x))
	for i := range indices {
		indices[i] = i
	}
	b.grow(indices, 0)
	return model.Tree{Nodes: b.nodes}
}

// grow appends the subtree for the given samples and returns its node index.
func (b *treeBuilder) grow(indices []int, depth int) int {
	mean, sse := meanSSE(b.y, indices)

	idx := len(b.nodes)
	b.nodes = append(b.nodes, model.Node{
		Feature: -1,
		Value:   mean,
		Cover:   float64(len(indices)),
	})

	if depth >= b.cfg.maxDepth || len(indices) < b.cfg.minSamplesSplit || sse < 1e-12 {
		return idx
	}

	feature, threshold, gain := b.bestSplit(indices, sse)
	if feature < 0 {
		return idx
	}

	var left, right []int
	for _, i := range indices {
		if b.x[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.cfg.minSamplesLeaf || len(right) < b.cfg.minSamplesLeaf {
		return idx
	}

	b.gains[feature] += gain

	leftIdx := b.grow(left, depth+1)
	rightIdx := b.grow(right, depth+1)

	node := &b.nodes[idx]
	node.Feature = feature
	node.Threshold = threshold
	node.Left = leftIdx
	node.Right = rightIdx
	return idx
}

// bestSplit scans every feature for the threshold with the largest reduction
// in sum of squared errors. Returns feature -1 when no split improves on the
// parent.
func (b *treeBuilder) bestSplit(indices []int, parentSSE float64) (int, float64, float64) {
	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 1e-12

	columns := len(b.x[indices[0]])
	values := make([]float64, 0, len(indices))

	for f := 0; f < columns; f++ {
		values = values[:0]
		for _, i := range indices {
			values = append(values, b.x[i][f])
		}
		sortFloats(values)

		for v := 1; v < len(values); v++ {
			if values[v] == values[v-1] {
				continue
			}
			threshold := (values[v] + values[v-1]) / 2

			var lSum, lSq, rSum, rSq float64
			var lN, rN int
			for _, i := range indices {
				yi := b.y[i]
				if b.x[i][f] < threshold {
					lSum += yi
					lSq += yi * yi
					lN++
				} else {
					rSum += yi
					rSq += yi * yi
					rN++
				}
			}
			if lN < b.cfg.minSamplesLeaf || rN < b.cfg.minSamplesLeaf {
				continue
			}

			childSSE := (lSq - lSum*lSum/float64(lN)) + (rSq - rSum*rSum/float64(rN))
			if gain := parentSSE - childSSE; gain > bestGain {
				bestFeature, bestThreshold, bestGain = f, threshold, gain
			}
		}
	}

	return bestFeature, bestThreshold, bestGain
}

func meanSSE(y []float64, indices []int) (float64, float64) {
	var sum, sq float64
	for _, i := range indices {
		sum += y[i]
		sq += y[i] * y[i]
	}
	n := float64(len(indices))
	mean := sum / n
	return mean, sq - sum*sum/n
}

func sortFloats(v []float64) {
	// Insertion sort: candidate lists here are small and often nearly sorted.
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// scaleTree multiplies every node value by factor, preserving the invariant
// that internal values stay the expected output of their subtree.
func scaleTree(t *model.Tree, factor float64) {
	for i := range t.Nodes {
		t.Nodes[i].Value *= factor
	}
}

// normalizeGains converts accumulated split gains into an importance vector
// summing to one, or zeros when no split ever fired.
func normalizeGains(gains []float64) []float64 {
	total := 0.0
	for _, g := range gains {
		total += g
	}
	out := make([]float64, len(gains))
	if total <= 0 {
		return out
	}
	for i, g := range gains {
		out[i] = g / total
	}
	return out
}

// fitBoostedClassifier runs gradient boosting for logistic loss: each round
// fits a tree to the residual y - sigmoid(margin) and adds it, scaled by the
// learning rate, to every sample's margin.
func fitBoostedClassifier(x [][]float64, y []float64, columns int, cfg BoostConfig) *model.Ensemble {
	prior := 0.0
	for _, v := range y {
		prior += v
	}
	prior /= float64(len(y))
	prior = math.Min(math.Max(prior, 1e-6), 1-1e-6)
	base := math.Log(prior / (1 - prior))

	margins := make([]float64, len(y))
	for i := range margins {
		margins[i] = base
	}

	gains := make([]float64, columns)
	residuals := make([]float64, len(y))
	trees := make([]model.Tree, 0, cfg.Rounds)

	treeCfg := treeConfig{maxDepth: cfg.MaxDepth, minSamplesSplit: cfg.MinSamplesSplit, minSamplesLeaf: cfg.MinSamplesLeaf}

	for round := 0; round < cfg.Rounds; round++ {
		for i := range y {
			residuals[i] = y[i] - model.Sigmoid(margins[i])
		}

		tree := fitTree(x, residuals, columns, treeCfg, gains)
		scaleTree(&tree, cfg.LearningRate)

		for i := range margins {
			margins[i] += tree.Evaluate(x[i])
		}
		trees = append(trees, tree)
	}

	return &model.Ensemble{
		Kind:        model.KindBoostedClassifier,
		Base:        base,
		Trees:       trees,
		Columns:     columns,
		Importances: normalizeGains(gains),
	}
}

// fitForestRegressor bags regression trees over bootstrap resamples and
// averages their outputs.
func fitForestRegressor(x [][]float64, y []float64, columns int, cfg ForestConfig) *model.Ensemble {
	rng := rand.New(rand.NewSource(cfg.Seed))
	gains := make([]float64, columns)
	trees := make([]model.Tree, 0, cfg.Trees)

	treeCfg := treeConfig{maxDepth: cfg.MaxDepth, minSamplesSplit: cfg.MinSamplesSplit, minSamplesLeaf: cfg.MinSamplesLeaf}

	for t := 0; t < cfg.Trees; t++ {
		bx := make([][]float64, len(x))
		by := make([]float64, len(y))
		for i := range bx {
			j := rng.Intn(len(x))
			bx[i] = x[j]
			by[i] = y[j]
		}
		trees = append(trees, fitTree(bx, by, columns, treeCfg, gains))
	}

	return &model.Ensemble{
		Kind:        model.KindForestRegressor,
		Trees:       trees,
		Columns:     columns,
		Importances: normalizeGains(gains),
	}
}
