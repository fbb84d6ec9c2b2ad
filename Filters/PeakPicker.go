package Filters

import "sort"

// LocalMaxima 找出所有局部极大值的下标。
// 平台 (连续相等的值) 取中点，首尾两点不算峰
func LocalMaxima(x []float64) []int {
	var peaks []int
	last := len(x) - 1
	i := 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				left, right := i, ahead-1
				peaks = append(peaks, (left+right)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// FindPeaks 在 x 中挑选峰值：
// height: 最小峰高，低于此值的局部极大值被丢弃
// distance: 最小水平间隔 (采样点)，间隔不足的两个峰只保留较高的那个
func FindPeaks(x []float64, height float64, distance int) []int {
	candidates := LocalMaxima(x)

	peaks := candidates[:0]
	for _, p := range candidates {
		if x[p] >= height {
			peaks = append(peaks, p)
		}
	}
	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}
	return selectByDistance(x, peaks, distance)
}

// selectByDistance 从最高的峰开始，依次剔除其邻域内的较低峰
func selectByDistance(x []float64, peaks []int, distance int) []int {
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}

	for n := len(order) - 1; n >= 0; n-- {
		j := order[n]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}
