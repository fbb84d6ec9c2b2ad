package ecg

import (
	"math"
	"math/rand"
)

// SynthConfig 合成心电信号的参数
type SynthConfig struct {
	Rate     float64 // 采样率 (Hz)
	Duration float64 // 秒
	BPM      float64 // 起始心率
	BPMEnd   float64 // 结束心率，0 表示与 BPM 相同 (线性变化)
	Noise    float64 // 均匀噪声幅度
	Wander   float64 // 基线漂移幅度 (0.3 Hz 正弦)
	Seed     int64
}

// Synthesize 生成 P-QRS-T 高斯叠加的合成心电信号 (非临床)，
// 同时返回真实 R 峰所在下标，供测试和基准对照
func Synthesize(cfg SynthConfig) (SampleSeries, PeakSet) {
	n := int(cfg.Duration * cfg.Rate)
	end := cfg.BPMEnd
	if end == 0 {
		end = cfg.BPM
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	samples := make([]float64, n)
	truth := PeakSet{}
	phase := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / cfg.Rate
		bpm := cfg.BPM + (end-cfg.BPM)*t/cfg.Duration

		prev := phase
		phase += bpm / 60 / cfg.Rate
		if phase >= 1 {
			phase -= 1
		}
		// 相位跨过 R 波中心
		if prev < rCenter && phase >= rCenter {
			truth = append(truth, i)
		}

		p := 0.08 * gauss(phase, 0.18, 0.03)
		q := -0.12 * gauss(phase, 0.30, 0.01)
		r := 1.00 * gauss(phase, rCenter, 0.008)
		s := -0.25 * gauss(phase, 0.35, 0.012)
		tw := 0.25 * gauss(phase, 0.60, 0.06)

		baseline := cfg.Wander * math.Sin(2*math.Pi*0.3*t)
		noise := cfg.Noise * (2*rng.Float64() - 1)
		samples[i] = baseline + p + q + r + s + tw + noise
	}
	return SampleSeries{Samples: samples, Rate: cfg.Rate}, truth
}

const rCenter = 0.32

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

// ImpulseTrain 长度 n，从 start 开始每 period 个采样一个单位脉冲
func ImpulseTrain(n, start, period int) ([]float64, PeakSet) {
	x := make([]float64, n)
	peaks := PeakSet{}
	for i := start; i < n && period > 0; i += period {
		x[i] = 1
		peaks = append(peaks, i)
	}
	return x, peaks
}
