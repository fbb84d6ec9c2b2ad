package Population

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler 按列标准化 (零均值、单位方差，方差用总体方差)
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler 计算每列的均值和标准差，标准差为 0 的列按 1 处理
func FitScaler(x *mat.Dense) *Scaler {
	_, cols := x.Dims()
	s := &Scaler{Mean: make([]float64, cols), Scale: make([]float64, cols)}
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, x)
		m, v := stat.PopMeanVariance(col, nil)
		s.Mean[j] = m
		s.Scale[j] = math.Sqrt(v)
		if s.Scale[j] == 0 || !finite(s.Scale[j]) {
			s.Scale[j] = 1
		}
	}
	return s
}

// Transform 返回标准化后的新矩阵
func (s *Scaler) Transform(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)
	return out
}

// Standardize 拟合并变换
func Standardize(x *mat.Dense) *mat.Dense {
	return FitScaler(x).Transform(x)
}
