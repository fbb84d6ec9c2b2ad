package ecg

import (
	"math"
	"reflect"
	"testing"
)

// 按固定间隔生成峰位置
func evenPeaks(start, step, count int) PeakSet {
	p := make(PeakSet, count)
	for i := range p {
		p[i] = start + i*step
	}
	return p
}

func TestEstimateHeartRate(t *testing.T) {
	cfg := DefaultConfig().HeartRate

	if got := EstimateHeartRate(PeakSet{100}, testRate, cfg); !got.Degenerate() {
		t.Errorf("single peak should be degenerate, got %+v", got)
	}

	// 400 采样 @ 500Hz = 0.8s -> 75 bpm
	hr := EstimateHeartRate(evenPeaks(0, 400, 10), testRate, cfg)
	if hr.Count != 9 || math.Abs(hr.Mean-75) > 1e-9 || hr.Std != 0 || hr.Min != hr.Max {
		t.Errorf("unexpected stats %+v", hr)
	}

	// 0.1s 间隔 = 600 bpm 全部被过滤
	hr = EstimateHeartRate(evenPeaks(0, 50, 10), testRate, cfg)
	if !hr.Degenerate() || hr.Mean != 0 {
		t.Errorf("non-physiological rates should be filtered, got %+v", hr)
	}
}

func TestComputeHRV(t *testing.T) {
	cfg := DefaultConfig().HRV

	if got := ComputeHRV(PeakSet{0, 400}, testRate, cfg); !got.Degenerate() {
		t.Errorf("one interval should be degenerate, got %+v", got)
	}

	// RR: 800, 900, 800, 900 ms
	peaks := PeakSet{0, 400, 850, 1250, 1700}
	hrv := ComputeHRV(peaks, testRate, cfg)
	if hrv.Intervals != 4 {
		t.Fatalf("expected 4 intervals, got %d", hrv.Intervals)
	}
	if math.Abs(hrv.SDNN-50) > 1e-9 {
		t.Errorf("SDNN = %v, want 50", hrv.SDNN)
	}
	if math.Abs(hrv.RMSSD-100) > 1e-9 {
		t.Errorf("RMSSD = %v, want 100", hrv.RMSSD)
	}
	if math.Abs(hrv.PNN50-100) > 1e-9 {
		t.Errorf("pNN50 = %v, want 100", hrv.PNN50)
	}

	// 间期全部越界
	if got := ComputeHRV(evenPeaks(0, 100, 10), testRate, cfg); !got.Degenerate() {
		t.Errorf("out-of-range intervals should be degenerate, got %+v", got)
	}
}

func TestClassifyRhythm(t *testing.T) {
	cfg := DefaultConfig().Arrhythmia

	tests := []struct {
		name  string
		peaks PeakSet
		want  ArrhythmiaFlags
	}{
		{"too few", PeakSet{3}, ArrhythmiaFlags{}},
		{"normal", evenPeaks(0, 400, 10), ArrhythmiaFlags{}},
		{"tachycardia", evenPeaks(0, 250, 10), ArrhythmiaFlags{FlagTachycardia}},
		{"bradycardia", evenPeaks(0, 600, 10), ArrhythmiaFlags{FlagBradycardia}},
		// RR 交替 400 / 1200 ms: mean 800, std 400
		{"irregular", PeakSet{0, 200, 800, 1000, 1600}, ArrhythmiaFlags{FlagIrregular}},
	}
	for _, tt := range tests {
		got := ClassifyRhythm(tt.peaks, testRate, cfg)
		if got == nil || !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestScoreHealth(t *testing.T) {
	cfg := DefaultConfig().Score

	perfect := ScoreHealth(HeartRateStats{Mean: 75, Count: 10}, HRVMetrics{SDNN: 50, Intervals: 10}, ArrhythmiaFlags{}, cfg)
	if perfect.Score != 100 || perfect.Level != LevelGood || len(perfect.Warnings) != 0 {
		t.Errorf("expected 100/Good, got %+v", perfect)
	}

	worst := ScoreHealth(HeartRateStats{Mean: 30}, HRVMetrics{SDNN: 5},
		ArrhythmiaFlags{FlagTachycardia, FlagBradycardia, FlagIrregular}, cfg)
	// 100 - 10 - 15 - 15
	if worst.Score != 60 || worst.Level != LevelFair {
		t.Errorf("expected 60/Fair, got %+v", worst)
	}
	wantWarnings := []string{WarnLowHR, WarnLowHRV, "possible tachycardia", "possible bradycardia", "possible irregular rhythm"}
	if !reflect.DeepEqual(worst.Warnings, wantWarnings) {
		t.Errorf("warnings = %v", worst.Warnings)
	}

	high := ScoreHealth(HeartRateStats{Mean: 120}, HRVMetrics{SDNN: 250}, ArrhythmiaFlags{FlagTachycardia}, cfg)
	if high.Score != 75 || high.Level != LevelFair {
		t.Errorf("expected 75/Fair, got %+v", high)
	}
}

func TestScoreHealth_Bounded(t *testing.T) {
	cfg := DefaultConfig().Score
	cfg.LowSDNN = 1000 // 放大扣分
	all := ArrhythmiaFlags{FlagTachycardia, FlagBradycardia, FlagIrregular, FlagIrregular,
		FlagIrregular, FlagIrregular, FlagIrregular, FlagIrregular, FlagIrregular,
		FlagIrregular, FlagIrregular, FlagIrregular, FlagIrregular, FlagIrregular,
		FlagIrregular, FlagIrregular, FlagIrregular, FlagIrregular, FlagIrregular, FlagIrregular}
	for _, hr := range []float64{0, 59.9, 60, 100, 100.1, 300} {
		for _, sdnn := range []float64{0, 19.9, 20, 200, 200.1} {
			for n := 0; n <= len(all); n += 5 {
				s := ScoreHealth(HeartRateStats{Mean: hr}, HRVMetrics{SDNN: sdnn}, all[:n], cfg)
				if s.Score < 0 || s.Score > 100 {
					t.Fatalf("score %d out of range", s.Score)
				}
				if s.Score < 60 && s.Level != LevelPoor {
					t.Errorf("score %d should be Poor, got %s", s.Score, s.Level)
				}
			}
		}
	}
}

func TestAnalyzeTrend(t *testing.T) {
	cfg := DefaultConfig().Trend
	window := int(cfg.WindowSec * testRate) // 15000

	// 每个 30s 窗口的心跳数递增: 30, 35, 40, 45
	var peaks PeakSet
	for w, beats := range []int{30, 35, 40, 45} {
		step := window / beats
		for i := 0; i < beats; i++ {
			peaks = append(peaks, w*window+i*step+10)
		}
	}

	trend := AnalyzeTrend(4*window, peaks, testRate, cfg)
	if trend == nil {
		t.Fatal("expected a trend")
	}
	if trend.Label != TrendRising || math.Abs(trend.Slope-10) > 1e-9 {
		t.Errorf("expected rising slope 10, got %s %v", trend.Label, trend.Slope)
	}
	if math.Abs(trend.R2-1) > 1e-9 {
		t.Errorf("R2 = %v, want 1", trend.R2)
	}
	if len(trend.Windows) != 4 || trend.Windows[1].Time != cfg.WindowSec || trend.Windows[0].Rate != 60 {
		t.Errorf("unexpected windows %+v", trend.Windows)
	}

	// 反向 -> falling
	var falling PeakSet
	for w, beats := range []int{45, 30} {
		step := window / beats
		for i := 0; i < beats; i++ {
			falling = append(falling, w*window+i*step)
		}
	}
	if tr := AnalyzeTrend(2*window, falling, testRate, cfg); tr == nil || tr.Label != TrendFalling {
		t.Errorf("expected falling trend, got %+v", tr)
	}
}

func TestAnalyzeTrend_Absent(t *testing.T) {
	cfg := DefaultConfig().Trend
	window := int(cfg.WindowSec * testRate)

	// 只有一个完整窗口 (末尾不完整窗口丢弃)
	peaks := evenPeaks(0, 400, 60)
	if tr := AnalyzeTrend(window+window/2, peaks, testRate, cfg); tr != nil {
		t.Errorf("expected no trend, got %+v", tr)
	}
	// 第二个窗口只有 1 个心跳
	peaks = append(evenPeaks(0, 400, 30), window+100)
	if tr := AnalyzeTrend(2*window, peaks, testRate, cfg); tr != nil {
		t.Errorf("expected no trend, got %+v", tr)
	}
	if tr := AnalyzeTrend(0, nil, testRate, cfg); tr != nil {
		t.Error("empty input should have no trend")
	}
}

func TestAnalyzeTrend_Stable(t *testing.T) {
	cfg := DefaultConfig().Trend
	window := int(cfg.WindowSec * testRate)
	tr := AnalyzeTrend(3*window, evenPeaks(100, 500, 90), testRate, cfg)
	if tr == nil || tr.Label != TrendStable {
		t.Fatalf("expected stable trend, got %+v", tr)
	}
	if tr.R2 != 1 {
		t.Errorf("constant rates with exact fit should give R2 = 1, got %v", tr.R2)
	}
}
