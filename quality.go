package ecg

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// 常见工频
var mainsFrequencies = []float64{50, 60}

// Goertzel 用于检测特定频率的能量
type Goertzel struct {
	coeff float64
	q1    float64
	q2    float64
	n     int
}

// NewGoertzel 初始化算法
func NewGoertzel(sampleRate, targetFreq float64) *Goertzel {
	// coeff = 2 * cos(2 * PI * targetFreq / sampleRate)
	return &Goertzel{coeff: 2.0 * math.Cos(2.0*math.Pi*targetFreq/sampleRate)}
}

// Reset 重置状态，处理完一个块后调用
func (g *Goertzel) Reset() {
	g.q1, g.q2, g.n = 0, 0, 0
}

// ProcessSample 处理单个采样点
func (g *Goertzel) ProcessSample(sample float64) {
	q0 := g.coeff*g.q1 - g.q2 + sample
	g.q2 = g.q1
	g.q1 = q0
	g.n++
}

// ProcessBlock 处理一整块数据
func (g *Goertzel) ProcessBlock(samples []float64) {
	for _, s := range samples {
		g.ProcessSample(s)
	}
}

// Amplitude 当前块中目标频率正弦分量的幅度估计 (2|X|/N)
func (g *Goertzel) Amplitude() float64 {
	if g.n == 0 {
		return 0
	}
	// magnitude^2 = q1^2 + q2^2 - q1*q2*coeff
	m2 := g.q1*g.q1 + g.q2*g.q2 - g.q1*g.q2*g.coeff
	if m2 < 0 {
		return 0
	}
	return 2 * math.Sqrt(m2) / float64(g.n)
}

// SignalQuality 原始信号的质量指标
type SignalQuality struct {
	MainsHz    float64 `json:"mains_hz"`    // 较强的工频 (50/60)，0 表示无法评估
	MainsRatio float64 `json:"mains_ratio"` // 工频分量 RMS / 信号 RMS，[0, 1]
}

// AssessQuality 用 Goertzel 估计原始信号中的工频干扰。
// 每个频率只取整数个周期的数据，减少频谱泄漏
func AssessQuality(series SampleSeries) SignalQuality {
	n := series.Len()
	if n == 0 || series.Rate <= 0 {
		return SignalQuality{}
	}

	mean := stat.Mean(series.Samples, nil)
	centered := make([]float64, n)
	power := 0.0
	for i, v := range series.Samples {
		centered[i] = v - mean
		power += centered[i] * centered[i]
	}
	if power == 0 {
		return SignalQuality{}
	}

	var q SignalQuality
	for _, f := range mainsFrequencies {
		if f >= series.Rate/2 {
			continue
		}
		cycles := math.Floor(float64(n) * f / series.Rate)
		length := int(cycles * series.Rate / f)
		if cycles < 1 || length < 1 {
			continue
		}

		block := centered[:length]
		blockPower := 0.0
		for _, v := range block {
			blockPower += v * v
		}
		if blockPower == 0 {
			continue
		}

		g := NewGoertzel(series.Rate, f)
		g.ProcessBlock(block)
		rms := math.Sqrt(blockPower / float64(length))
		ratio := math.Min(g.Amplitude()/math.Sqrt2/rms, 1)
		if ratio > q.MainsRatio {
			q = SignalQuality{MainsHz: f, MainsRatio: ratio}
		}
	}
	return q
}
