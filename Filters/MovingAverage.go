package Filters

// MovingAverageSame 矩形窗移动平均，输出与输入等长 ("same" 卷积)。
// 边缘处窗口只覆盖部分样本，但仍除以完整窗口长度
func MovingAverageSame(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	if window < 1 {
		window = 1
	}

	// 前缀和，避免每个点重新累加整个窗口
	prefix := make([]float64, len(x)+1)
	for i, v := range x {
		prefix[i+1] = prefix[i] + v
	}

	// 居中偏移与 numpy.convolve(mode="same") 一致：偶数窗口偏向左侧半个样本
	offset := (window - 1) / 2
	last := len(x) - 1
	for i := range x {
		hi := i + offset
		lo := hi - window + 1
		if lo < 0 {
			lo = 0
		}
		if hi > last {
			hi = last
		}
		if hi < lo {
			continue
		}
		out[i] = (prefix[hi+1] - prefix[lo]) / float64(window)
	}
	return out
}

// Diff 一阶差分，长度为 len(x)-1
func Diff(x []float64) []float64 {
	if len(x) < 2 {
		return []float64{}
	}
	d := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		d[i-1] = x[i] - x[i-1]
	}
	return d
}

// Square 逐点平方 (放大大的偏差，同时去掉符号)
func Square(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * v
	}
	return out
}
