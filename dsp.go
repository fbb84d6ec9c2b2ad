package ecg

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/stat"
)

// SpectrumAnalyzer 在 QRS 能量包络上估计主节律频率，作为峰检测心率的交叉校验
type SpectrumAnalyzer struct {
	SampleRate float64
	MinBPM     float64
	MaxBPM     float64
}

// NewSpectrumAnalyzer 创建频谱分析器，搜索范围 [minBPM, maxBPM]
func NewSpectrumAnalyzer(sampleRate, minBPM, maxBPM float64) *SpectrumAnalyzer {
	return &SpectrumAnalyzer{
		SampleRate: sampleRate,
		MinBPM:     minBPM,
		MaxBPM:     maxBPM,
	}
}

// DominantRate 返回包络的主频 (bpm) 和对应幅度。
// 包络为空、全平或搜索范围内没有能量时返回 0, 0
func (sa *SpectrumAnalyzer) DominantRate(envelope []float64) (float64, float64) {
	n := len(envelope)
	if n < 4 || sa.SampleRate <= 0 {
		return 0, 0
	}

	// 1. 去直流 + 汉宁窗
	mean := stat.Mean(envelope, nil)
	hann := window.Hann(n)
	fftSize := nextPow2(n)
	input := make([]float64, fftSize)
	for i, v := range envelope {
		input[i] = (v - mean) * hann[i]
	}

	// 2. FFT
	spectrum := fft.FFTReal(input)
	binWidth := sa.SampleRate / float64(fftSize)

	// 3. 在心率范围内找最大幅度
	startIndex := int(math.Ceil(sa.MinBPM / 60 / binWidth))
	endIndex := int(math.Floor(sa.MaxBPM / 60 / binWidth))
	if startIndex < 1 {
		startIndex = 1
	}
	if endIndex > fftSize/2 {
		endIndex = fftSize / 2
	}
	if startIndex > endIndex {
		return 0, 0
	}

	mags := make([]float64, fftSize/2+1)
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
	}
	maxIndex, maxMag := 0, 0.0
	for i := startIndex; i <= endIndex; i++ {
		if mags[i] > maxMag {
			maxMag = mags[i]
			maxIndex = i
		}
	}
	if maxIndex == 0 || maxMag == 0 || math.IsNaN(maxMag) {
		return 0, 0
	}

	// 4. 抛物线插值
	bin := float64(maxIndex)
	if maxIndex > 0 && maxIndex < len(mags)-1 {
		alpha, beta, gamma := mags[maxIndex-1], mags[maxIndex], mags[maxIndex+1]
		if denom := alpha - 2*beta + gamma; denom != 0 {
			bin += 0.5 * (alpha - gamma) / denom
		}
	}
	return bin * binWidth * 60, maxMag
}

// CrossCorrelate 用 FFT 计算 a 对 b 的线性互相关，返回峰值所在的滞后 (采样点)。
// 正值表示 a 相对 b 延迟
func CrossCorrelate(a, b []float64) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	size := nextPow2(len(a) + len(b) - 1)

	fa := fft.FFTReal(zeroPad(a, size))
	fb := fft.FFTReal(zeroPad(b, size))
	for i := range fa {
		fa[i] *= cmplx.Conj(fb[i])
	}
	corr := fft.IFFT(fa)

	best, lag := math.Inf(-1), 0
	for k, v := range corr {
		if re := real(v); re > best {
			best = re
			lag = k
		}
	}
	if lag > size/2 {
		lag -= size
	}
	return lag
}

func zeroPad(x []float64, size int) []float64 {
	out := make([]float64, size)
	copy(out, x)
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
