package anomaly

import (
	"math"
	"math/rand"
)

// isolationTree is one randomized partition tree over a feature-vector
// subsample, à la Liu, Ting & Zhou's isolation forest: anomalies take
// fewer random splits to isolate than normal points, so short average
// path length across the forest is the anomaly signal. No third-party
// library in this stack implements isolation forests, so this is a
// compact from-scratch version — see DESIGN.md for why stdlib is
// justified here.
type isolationTree struct {
	splitFeature int
	splitValue   float64
	lo, hi       float64 // range of splitFeature over the points at this node
	left, right  *isolationTree
	size         int // number of points at this node, for leaf path-length correction
}

const maxTreeDepth = 16

func buildTree(points [][]float64, depth int, rng *rand.Rand) *isolationTree {
	if len(points) <= 1 || depth >= maxTreeDepth {
		return &isolationTree{size: len(points)}
	}

	numFeatures := len(points[0])
	feature := rng.Intn(numFeatures)

	min, max := points[0][feature], points[0][feature]
	for _, p := range points {
		if p[feature] < min {
			min = p[feature]
		}
		if p[feature] > max {
			max = p[feature]
		}
	}
	if min == max {
		return &isolationTree{size: len(points)}
	}

	splitValue := min + rng.Float64()*(max-min)

	var leftPoints, rightPoints [][]float64
	for _, p := range points {
		if p[feature] < splitValue {
			leftPoints = append(leftPoints, p)
		} else {
			rightPoints = append(rightPoints, p)
		}
	}
	if len(leftPoints) == 0 || len(rightPoints) == 0 {
		return &isolationTree{size: len(points)}
	}

	return &isolationTree{
		splitFeature: feature,
		splitValue:   splitValue,
		lo:           min,
		hi:           max,
		left:         buildTree(leftPoints, depth+1, rng),
		right:        buildTree(rightPoints, depth+1, rng),
		size:         len(points),
	}
}

func (t *isolationTree) pathLength(point []float64, depth int) float64 {
	if t.left == nil && t.right == nil {
		return float64(depth) + averagePathLength(t.size)
	}
	v := point[t.splitFeature]
	if v < t.lo || v > t.hi {
		// Outside the range of every training point at this node: the
		// split here already isolates it.
		return float64(depth + 1)
	}
	if v < t.splitValue {
		return t.left.pathLength(point, depth+1)
	}
	return t.right.pathLength(point, depth+1)
}

// averagePathLength is the expected path length of an unsuccessful BST
// search over n points, the standard isolation-forest leaf correction.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(float64(n-1))+0.5772156649) - 2*float64(n-1)/float64(n)
}

// Forest is a trained ensemble of isolation trees plus the score
// threshold (from the training contamination target) used to classify a
// new point as an outlier.
type Forest struct {
	trees        []*isolationTree
	sampleSize   int
	threshold    float64
	trainedCount int
}

const (
	numTrees   = 100
	sampleSize = 256
	seed       = 42
)

// Fit trains a forest on points and derives an outlier threshold such that
// roughly contamination fraction of the training set scores above it.
func Fit(points [][]float64, contamination float64) *Forest {
	rng := rand.New(rand.NewSource(seed))

	n := sampleSize
	if n > len(points) {
		n = len(points)
	}

	trees := make([]*isolationTree, 0, numTrees)
	for i := 0; i < numTrees; i++ {
		sample := samplePoints(points, n, rng)
		trees = append(trees, buildTree(sample, 0, rng))
	}

	f := &Forest{trees: trees, sampleSize: n, trainedCount: len(points)}

	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = f.Score(p)
	}
	f.threshold = quantile(scores, 1-contamination)

	return f
}

// Score returns the anomaly score in [0,1]; values near 1 indicate short
// average path length (likely anomalous), values near 0.5 indicate a
// typical point.
func (f *Forest) Score(point []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.pathLength(point, 0)
	}
	avg := sum / float64(len(f.trees))
	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -avg/c)
}

// IsOutlier classifies point against the threshold learned at Fit time.
func (f *Forest) IsOutlier(point []float64) bool {
	return f.Score(point) > f.threshold
}

func samplePoints(points [][]float64, n int, rng *rand.Rand) [][]float64 {
	if n >= len(points) {
		out := make([][]float64, len(points))
		copy(out, points)
		return out
	}
	idx := rng.Perm(len(points))[:n]
	out := make([][]float64, n)
	for i, j := range idx {
		out[i] = points[j]
	}
	return out
}

func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sortFloats(sorted)
	idx := int(q * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sortFloats(values []float64) {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j-1] > values[j]; j-- {
			values[j-1], values[j] = values[j], values[j-1]
		}
	}
}
