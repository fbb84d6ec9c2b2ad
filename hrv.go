package ecg

import (
	"math"

	"ecg/Filters"
)

// HRVMetrics 时域心率变异性指标。Intervals == 0 表示过滤后的 RR 间期不足 2 个，其余字段为 0
type HRVMetrics struct {
	SDNN      float64 `json:"sdnn"`  // RR 间期的总体标准差 (ms)
	RMSSD     float64 `json:"rmssd"` // 相邻 RR 差值的均方根 (ms)
	PNN50     float64 `json:"pnn50"` // 相邻 RR 差值 > 50ms 的百分比
	Intervals int     `json:"intervals"`
}

// Degenerate 是否为退化结果
func (m HRVMetrics) Degenerate() bool { return m.Intervals == 0 }

// ComputeHRV 计算 SDNN / RMSSD / pNN50
func ComputeHRV(peaks PeakSet, rate float64, cfg HRVConfig) HRVMetrics {
	raw := peaks.IntervalsMs(rate)
	if len(raw) < 2 {
		return HRVMetrics{}
	}

	// 过滤异常间期
	rr := raw[:0]
	for _, v := range raw {
		if v >= cfg.MinRRMs && v <= cfg.MaxRRMs {
			rr = append(rr, v)
		}
	}
	if len(rr) < 2 {
		return HRVMetrics{}
	}

	_, sdnn := popMeanStd(rr)

	diffs := Filters.Diff(rr)
	sumSq := 0.0
	over := 0
	for _, d := range diffs {
		sumSq += d * d
		if math.Abs(d) > cfg.NN50Ms {
			over++
		}
	}

	return HRVMetrics{
		SDNN:      sdnn,
		RMSSD:     math.Sqrt(sumSq / float64(len(diffs))),
		PNN50:     100 * float64(over) / float64(len(diffs)),
		Intervals: len(rr),
	}
}
