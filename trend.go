package ecg

import (
	"gonum.org/v1/gonum/stat"
)

// TrendLabel 趋势方向
type TrendLabel string

const (
	TrendRising  TrendLabel = "rising"
	TrendFalling TrendLabel = "falling"
	TrendStable  TrendLabel = "stable"
)

// TrendResult 分窗心率的线性趋势
type TrendResult struct {
	Slope     float64     `json:"slope"` // bpm / 窗口
	Intercept float64     `json:"intercept"`
	Label     TrendLabel  `json:"label"`
	R2        float64     `json:"r2"`
	Windows   []RatePoint `json:"windows"` // 参与拟合的窗口 (起始时间, 心率)
}

// WindowRates 把记录切成不重叠的固定时长窗口 (丢弃末尾不完整窗口)，
// 对心跳数 >= minBeats 的窗口计算心率 = 60 * 心跳数 / 窗口时长
func WindowRates(length int, peaks PeakSet, rate, windowSec float64, minBeats int) []RatePoint {
	size := int(windowSec * rate)
	if size < 1 || rate <= 0 {
		return nil
	}
	seconds := float64(size) / rate

	var out []RatePoint
	for start := 0; start+size <= length; start += size {
		beats := peaks.Within(start, start+size)
		if beats < minBeats {
			continue
		}
		out = append(out, RatePoint{
			Time: float64(start) / rate,
			Rate: 60 * float64(beats) / seconds,
		})
	}
	return out
}

// AnalyzeTrend 对分窗心率做最小二乘线性回归 (自变量为有效窗口的序号)。
// 有效窗口少于 2 个时返回 nil
func AnalyzeTrend(length int, peaks PeakSet, rate float64, cfg TrendConfig) *TrendResult {
	windows := WindowRates(length, peaks, rate, cfg.WindowSec, cfg.MinBeats)
	if len(windows) < 2 {
		return nil
	}

	x := make([]float64, len(windows))
	y := make([]float64, len(windows))
	for i, w := range windows {
		x[i] = float64(i)
		y[i] = w.Rate
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)

	label := TrendStable
	if slope > cfg.SlopeThreshold {
		label = TrendRising
	} else if slope < -cfg.SlopeThreshold {
		label = TrendFalling
	}

	return &TrendResult{
		Slope:     slope,
		Intercept: intercept,
		Label:     label,
		R2:        rSquared(x, y, intercept, slope),
		Windows:   windows,
	}
}

// rSquared 决定系数。y 完全不变时：拟合无残差记为 1，否则记为 0
func rSquared(x, y []float64, intercept, slope float64) float64 {
	if stat.PopVariance(y, nil) == 0 {
		for i := range x {
			if r := y[i] - (intercept + slope*x[i]); r*r > 1e-18 {
				return 0
			}
		}
		return 1
	}
	return stat.RSquared(x, y, nil, intercept, slope)
}
