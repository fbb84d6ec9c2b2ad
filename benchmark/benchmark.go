package main

import (
	"ecg"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"
)

// ============================================================================
// 1. 信道效果 (Channel Effects)
// ============================================================================

type ChannelEffects struct {
	SNRdB  float64 // 高斯白噪声信噪比
	Wander float64 // 基线漂移幅度 (0.3Hz 呼吸)
	Mains  float64 // 50Hz 工频干扰幅度
}

// ApplyEffects 在合成信号上叠加噪声、漂移和工频干扰
func ApplyEffects(series ecg.SampleSeries, fx ChannelEffects, rng *rand.Rand) ecg.SampleSeries {
	out := make([]float64, series.Len())
	copy(out, series.Samples)

	// 信号平均功率 P_signal
	var energy float64
	for _, s := range out {
		energy += s * s
	}
	pSignal := energy / float64(len(out))

	// SNR(dB) = 10 * log10(P_signal / P_noise)
	noiseScale := math.Sqrt(pSignal / math.Pow(10, fx.SNRdB/10.0))

	for i := range out {
		t := float64(i) / series.Rate
		out[i] += fx.Wander * math.Sin(2*math.Pi*0.3*t)
		out[i] += fx.Mains * math.Sin(2*math.Pi*50*t)
		out[i] += rng.NormFloat64() * noiseScale
	}
	return ecg.SampleSeries{Samples: out, Rate: series.Rate}
}

// ============================================================================
// 2. 评分 (Scoring)
// ============================================================================

// BeatRecall 真实 R 峰中有多少在容差内被检出 (%)，以及误检数
func BeatRecall(truth, detected ecg.PeakSet, tolerance int) (float64, int) {
	if len(truth) == 0 {
		return 100, len(detected)
	}
	matched := 0
	used := make([]bool, len(detected))
	j := 0
	for _, p := range truth {
		for j < len(detected) && detected[j] < p-tolerance {
			j++
		}
		if j < len(detected) && !used[j] && abs(detected[j]-p) <= tolerance {
			used[j] = true
			matched++
			j++
		}
	}
	return 100 * float64(matched) / float64(len(truth)), len(detected) - matched
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ============================================================================
// 3. 基准测试套件 (Benchmark Harness)
// ============================================================================

type TestCase struct {
	Name     string
	BPM      float64
	BPMEnd   float64
	Duration float64
	Effects  ChannelEffects
}

func RunBenchmark(cfg *ecg.Config, rate float64) {
	analyzer, err := ecg.NewAnalyzer(cfg)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	testCases := []TestCase{
		{Name: "Level 1 (Clean)", BPM: 72, Duration: 60, Effects: ChannelEffects{SNRdB: 30}},
		{Name: "Level 1 (Brady)", BPM: 50, Duration: 60, Effects: ChannelEffects{SNRdB: 30}},
		{Name: "Level 2 (Tachy)", BPM: 130, Duration: 60, Effects: ChannelEffects{SNRdB: 20, Wander: 0.3}},
		{Name: "Level 2 (Drift)", BPM: 80, Duration: 90, Effects: ChannelEffects{SNRdB: 15, Wander: 0.8}},
		{Name: "Level 2 (Mains)", BPM: 80, Duration: 60, Effects: ChannelEffects{SNRdB: 15, Mains: 0.3}},
		{Name: "Level 2 (Ramp)", BPM: 60, BPMEnd: 110, Duration: 120, Effects: ChannelEffects{SNRdB: 15}},
		{Name: "Level 3 (Noisy)", BPM: 90, Duration: 60, Effects: ChannelEffects{SNRdB: 5, Wander: 0.5, Mains: 0.2}},
	}

	rng := rand.New(rand.NewSource(1))
	tolerance := int(0.05 * rate) // 50ms

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tBPM\tSNR(dB)\tHR\tERR(bpm)\tRECALL(%)\tFALSE\tLAG\tMAINS\tTREND\tTIME(ms)\tSTATUS")
	fmt.Fprintln(w, "-----\t---\t-------\t--\t--------\t---------\t-----\t---\t-----\t-----\t--------\t------")

	for _, tc := range testCases {
		// 1. 生成信号
		clean, truth := ecg.Synthesize(ecg.SynthConfig{
			Rate:     rate,
			Duration: tc.Duration,
			BPM:      tc.BPM,
			BPMEnd:   tc.BPMEnd,
			Seed:     rng.Int63(),
		})

		// 2. 信道效果
		noisy := ApplyEffects(clean, tc.Effects, rng)

		// 3. 分析
		start := time.Now()
		rec, err := analyzer.Analyze(tc.Name, nil, noisy)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(w, "%s\t%.0f\t%.1f\t-\t-\t-\t-\t-\t-\t-\t%d\tERROR (%v)\n",
				tc.Name, tc.BPM, tc.Effects.SNRdB, elapsed.Milliseconds(), err)
			continue
		}

		// 4. 评分
		expected := tc.BPM
		if tc.BPMEnd != 0 {
			expected = (tc.BPM + tc.BPMEnd) / 2
		}
		hrErr := math.Abs(rec.HeartRate.Mean - expected)
		recall, falsePos := BeatRecall(truth, rec.Peaks, tolerance)
		lag := ecg.CrossCorrelate(rec.Conditioned, clean.Samples)
		trendLabel := "-"
		if rec.Trend != nil {
			trendLabel = string(rec.Trend.Label)
		}

		status := "PASS"
		if hrErr > 3 || recall < 95 {
			status = "FAIL"
		}

		fmt.Fprintf(w, "%s\t%.0f\t%.1f\t%.1f\t%.2f\t%.1f\t%d\t%d\t%.2f\t%s\t%d\t%s\n",
			tc.Name, tc.BPM, tc.Effects.SNRdB, rec.HeartRate.Mean, hrErr, recall, falsePos, lag,
			rec.Quality.MainsRatio, trendLabel, elapsed.Milliseconds(), status)
	}
	w.Flush()
}

func main() {
	configPath := flag.String("config", "", "TOML config file")
	rate := flag.Float64("rate", 500, "Synthetic sample rate (Hz)")
	flag.Parse()

	cfg, err := ecg.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	// 基准只看表格
	log.SetOutput(io.Discard)
	RunBenchmark(cfg, *rate)
}
