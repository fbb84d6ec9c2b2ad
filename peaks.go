package ecg

import (
	"fmt"
	"math"

	"ecg/Filters"

	"gonum.org/v1/gonum/floats"
)

// PeakTrace 检测过程的中间结果，供导出和调试使用
type PeakTrace struct {
	Envelope  []float64 // 平滑后的 QRS 能量包络，长度 len(samples)-1
	Threshold float64   // 实际使用的最小峰高
	Window    int       // 移动平均窗口 (采样点)
	Distance  int       // 最小峰间隔 (采样点)
	Picks     PeakSet   // 包络上的峰位置
	Peaks     PeakSet   // 回到带通信号上校正后的 R 峰位置
}

// DetectPeaks 检测 R 峰 (Pan-Tompkins 的简化版)：
// 带通 -> 一阶差分 -> 平方 -> 移动平均 -> 自适应阈值寻峰 -> 在带通信号上校正
func DetectPeaks(series SampleSeries, cfg PeakConfig) (PeakSet, error) {
	trace, err := TracePeaks(series, cfg)
	if err != nil {
		return nil, err
	}
	return trace.Peaks, nil
}

// TracePeaks 与 DetectPeaks 相同，但返回全部中间结果
func TracePeaks(series SampleSeries, cfg PeakConfig) (*PeakTrace, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}

	// 1. 带通滤波，保留 QRS 波群的主要能量
	bp, err := NewButterworth(cfg.Order, Bandpass, series.Rate, cfg.BandLowHz, cfg.BandHighHz)
	if err != nil {
		return nil, fmt.Errorf("design bandpass: %w", err)
	}
	filtered, err := bp.FiltFilt(series.Samples)
	if err != nil {
		return nil, err
	}

	// 2. 求导 + 平方
	squared := Filters.Square(Filters.Diff(filtered))

	// 3. 移动平均
	window := toSamples(cfg.SmoothWindow * series.Rate)
	envelope := Filters.MovingAverageSame(squared, window)

	trace := &PeakTrace{
		Envelope: envelope,
		Window:   window,
		Distance: toSamples(cfg.MinDistanceSec * series.Rate),
		Picks:    PeakSet{},
		Peaks:    PeakSet{},
	}
	if len(envelope) == 0 {
		return trace, nil
	}

	// 4. 自适应阈值：全局最大值的一定比例
	// 平直信号的包络只剩浮点残差，阈值退化为 ~0，任何残差都会被当成峰，直接返回空集
	swing := floats.Max(series.Samples) - floats.Min(series.Samples)
	peak := floats.Max(envelope)
	if swing == 0 || !(peak > envelopeFloor*swing*swing) || math.IsInf(peak, 0) {
		return trace, nil
	}
	trace.Threshold = cfg.HeightRatio * peak

	trace.Picks = PeakSet(Filters.FindPeaks(envelope, trace.Threshold, trace.Distance))

	// 5. 平方后的导数在 R 波顶点处为 0，包络在两侧各有一个峰，
	// 在 ±window/2 内取 |带通信号| 最大处作为 R 峰
	trace.Peaks = refinePeaks(filtered, trace.Picks, window/2, trace.Distance)
	return trace, nil
}

// refinePeaks 把每个候选移到 [p-radius, p+radius] 内 |x| 最大的位置。
// 校正后间隔不足 distance 的相邻峰只保留 |x| 较大的一个
func refinePeaks(x []float64, picks PeakSet, radius, distance int) PeakSet {
	out := PeakSet{}
	for _, p := range picks {
		lo, hi := max(p-radius, 0), min(p+radius, len(x)-1)
		best := p
		for i := lo; i <= hi; i++ {
			if math.Abs(x[i]) > math.Abs(x[best]) {
				best = i
			}
		}

		if n := len(out); n > 0 && best-out[n-1] < distance {
			stronger := math.Abs(x[best]) > math.Abs(x[out[n-1]])
			if stronger && (n == 1 || best-out[n-2] >= distance) {
				out[n-1] = best
			}
			continue
		}
		out = append(out, best)
	}
	return out
}

// envelopeFloor 包络最大值相对输入峰峰值平方的下限，低于它视为数值残差
const envelopeFloor = 1e-20

// toSamples 秒数换算成采样点，四舍五入，至少为 1
func toSamples(n float64) int {
	v := int(math.Round(n))
	if v < 1 {
		return 1
	}
	return v
}
