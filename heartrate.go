package ecg

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// HeartRateStats 心率统计 (bpm)。
// Count 为参与统计的瞬时心率个数；Count == 0 时其余字段全为 0，表示峰数不足或全部被过滤
type HeartRateStats struct {
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Std   float64 `json:"std"`
	Count int     `json:"count"`
}

// Degenerate 是否为退化结果 (可用间期不足)
func (s HeartRateStats) Degenerate() bool { return s.Count == 0 }

// EstimateHeartRate 由 R 峰计算瞬时心率并统计。
// 超出 [MinBPM, MaxBPM] 的瞬时心率视为非生理值丢弃
func EstimateHeartRate(peaks PeakSet, rate float64, cfg HeartRateConfig) HeartRateStats {
	if len(peaks) < 2 {
		return HeartRateStats{}
	}

	rr := peaks.Intervals(rate)
	rates := make([]float64, 0, len(rr))
	for _, v := range rr {
		bpm := 60 / v
		if bpm >= cfg.MinBPM && bpm <= cfg.MaxBPM {
			rates = append(rates, bpm)
		}
	}
	if len(rates) == 0 {
		return HeartRateStats{}
	}

	mean, std := popMeanStd(rates)
	return HeartRateStats{
		Mean:  mean,
		Min:   floats.Min(rates),
		Max:   floats.Max(rates),
		Std:   std,
		Count: len(rates),
	}
}

// popMeanStd 均值和总体标准差 (除以 n)
func popMeanStd(x []float64) (mean, std float64) {
	mean, variance := stat.PopMeanVariance(x, nil)
	return mean, math.Sqrt(variance)
}
