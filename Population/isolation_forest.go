package Population

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const eulerGamma = 0.5772156649

// IsolationForest 随机划分隔离异常点：越容易被孤立 (平均路径越短) 的点越异常
type IsolationForest struct {
	Trees         int
	MaxSamples    int
	Contamination float64 // 期望的异常比例，决定判定阈值

	rng       *rand.Rand
	roots     []*iNode
	psi       int
	threshold float64
}

type iNode struct {
	feature     int
	split       float64
	left, right *iNode
	size        int // 叶子上的样本数
}

func (n *iNode) leaf() bool { return n.left == nil }

// NewIsolationForest 固定随机种子，结果可复现
func NewIsolationForest(trees, maxSamples int, contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{
		Trees:         trees,
		MaxSamples:    maxSamples,
		Contamination: contamination,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Fit 在 x (每行一个样本) 上建树，并按 Contamination 确定阈值
func (f *IsolationForest) Fit(x *mat.Dense) {
	rows, _ := x.Dims()
	f.psi = min(f.MaxSamples, rows)
	limit := int(math.Ceil(math.Log2(math.Max(float64(f.psi), 2))))

	f.roots = make([]*iNode, f.Trees)
	for t := range f.roots {
		idx := f.rng.Perm(rows)[:f.psi]
		f.roots[t] = f.build(x, idx, 0, limit)
	}

	scores := make([]float64, rows)
	for i := range scores {
		scores[i] = f.Score(x.RawRowView(i))
	}
	f.threshold = Percentile(scores, 100*(1-f.Contamination))
}

func (f *IsolationForest) build(x *mat.Dense, idx []int, depth, limit int) *iNode {
	if depth >= limit || len(idx) <= 1 {
		return &iNode{size: len(idx)}
	}

	// 只在取值不全相同的特征上划分
	_, cols := x.Dims()
	var candidates []int
	lo := make([]float64, cols)
	hi := make([]float64, cols)
	for j := 0; j < cols; j++ {
		lo[j], hi[j] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := x.At(i, j)
			lo[j] = math.Min(lo[j], v)
			hi[j] = math.Max(hi[j], v)
		}
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &iNode{size: len(idx)}
	}

	q := candidates[f.rng.Intn(len(candidates))]
	p := lo[q] + f.rng.Float64()*(hi[q]-lo[q])

	var left, right []int
	for _, i := range idx {
		if x.At(i, q) < p {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &iNode{
		feature: q,
		split:   p,
		left:    f.build(x, left, depth+1, limit),
		right:   f.build(x, right, depth+1, limit),
	}
}

// Score 异常分数 s = 2^(-E[h(x)]/c(psi))，取值 (0, 1]，越大越异常
func (f *IsolationForest) Score(p []float64) float64 {
	if len(f.roots) == 0 {
		return 0
	}
	total := 0.0
	for _, root := range f.roots {
		total += pathLength(root, p, 0)
	}
	norm := averagePath(f.psi)
	if norm == 0 {
		return 0.5
	}
	return math.Pow(2, -(total/float64(len(f.roots)))/norm)
}

// Outliers 返回 x 中每行是否被判为异常 (分数严格高于阈值)
func (f *IsolationForest) Outliers(x *mat.Dense) []bool {
	rows, _ := x.Dims()
	out := make([]bool, rows)
	for i := range out {
		out[i] = f.Score(x.RawRowView(i)) > f.threshold
	}
	return out
}

// FitPredict 拟合后判定同一批数据
func (f *IsolationForest) FitPredict(x *mat.Dense) []bool {
	f.Fit(x)
	return f.Outliers(x)
}

func pathLength(n *iNode, p []float64, depth int) float64 {
	for !n.leaf() {
		if p[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePath(n.size)
}

// averagePath 含 n 个样本的二叉搜索树中一次失败查找的平均路径长度
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	m := float64(n - 1)
	return 2*(math.Log(m)+eulerGamma) - 2*m/float64(n)
}
