package ecg

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedInput 表示输入数据无法分析 (空序列、采样率非法、含 NaN 等)
var ErrMalformedInput = errors.New("malformed input")

// Unknown 是头信息缺失时的默认值
const Unknown = "Unknown"

// 头信息中可能出现的键，按优先级排列
var (
	RecordDateKeys     = []string{"记录日期", "record_date", "Record Date"}
	ClassificationKeys = []string{"分类", "classification", "Classification"}
	SampleRateKeys     = []string{"采样率", "sample_rate", "Sample Rate"}
)

// Header 是数据源解析出的头信息
type Header map[string]string

// Lookup 按顺序查找第一个非空的键，找不到返回 Unknown
func (h Header) Lookup(keys ...string) string {
	for _, k := range keys {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return Unknown
}

// SampleSeries 一段采样序列和它的采样率，加载后不再修改
type SampleSeries struct {
	Samples []float64
	Rate    float64 // 采样率 (Hz)
}

// Len 返回采样点数
func (s SampleSeries) Len() int { return len(s.Samples) }

// Duration 返回时长 (秒)
func (s SampleSeries) Duration() float64 {
	if s.Rate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / s.Rate
}

// Validate 检查序列能否进入流水线
func (s SampleSeries) Validate() error {
	if len(s.Samples) == 0 {
		return fmt.Errorf("%w: empty sample series", ErrMalformedInput)
	}
	if s.Rate <= 0 || math.IsNaN(s.Rate) || math.IsInf(s.Rate, 0) {
		return fmt.Errorf("%w: invalid sample rate %v", ErrMalformedInput, s.Rate)
	}
	for i, v := range s.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite sample at index %d", ErrMalformedInput, i)
		}
	}
	return nil
}

// PeakSet 严格递增的 R 峰采样下标，可以为空
type PeakSet []int

// Intervals 返回相邻峰的间隔 (秒)，长度为 len(p)-1
func (p PeakSet) Intervals(rate float64) []float64 {
	if len(p) < 2 {
		return nil
	}
	rr := make([]float64, len(p)-1)
	for i := 1; i < len(p); i++ {
		rr[i-1] = float64(p[i]-p[i-1]) / rate
	}
	return rr
}

// IntervalsMs 返回相邻峰的间隔 (毫秒)
func (p PeakSet) IntervalsMs(rate float64) []float64 {
	rr := p.Intervals(rate)
	for i := range rr {
		rr[i] *= 1000
	}
	return rr
}

// Within 返回落在 [start, end) 内的峰数量
func (p PeakSet) Within(start, end int) int {
	n := 0
	for _, idx := range p {
		if idx >= start && idx < end {
			n++
		}
	}
	return n
}

// RatePoint 一个窗口的起始时间 (秒) 和心率 (bpm)
type RatePoint struct {
	Time float64 `json:"time"`
	Rate float64 `json:"rate"`
}

// AnalysisRecord 单条记录的完整分析结果，创建后只读
type AnalysisRecord struct {
	ID             string          `json:"id"`
	RecordDate     string          `json:"record_date"`
	Classification string          `json:"classification"`
	SampleRate     float64         `json:"sample_rate"`
	HeartRate      HeartRateStats  `json:"heart_rate"`
	HRV            HRVMetrics      `json:"hrv"`
	Arrhythmia     ArrhythmiaFlags `json:"arrhythmia"`
	Trend          *TrendResult    `json:"trend,omitempty"` // nil 表示窗口不足，无法做趋势
	RateProfile    []RatePoint     `json:"rate_profile"`    // 10s 窗口的心率曲线，用于绘图
	Health         HealthScore     `json:"health"`
	SpectralRate   float64         `json:"spectral_rate"` // 频谱估计的心率，0 表示没有有效能量
	Quality        SignalQuality   `json:"quality"`
	TotalBeats     int             `json:"total_beats"`
	Duration       float64         `json:"duration"` // 秒

	// 以下保留给绘图 / 导出使用
	Raw         []float64 `json:"-"`
	Conditioned []float64 `json:"-"`
	Peaks       PeakSet   `json:"-"`
}

// Warnings 返回心律警告的文本
func (r *AnalysisRecord) Warnings() []string {
	return r.Arrhythmia.Labels()
}
