package ecg

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
)

func TestAnalyze_SyntheticRecord(t *testing.T) {
	a, err := NewAnalyzer(DefaultConfig())
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	series, truth := Synthesize(SynthConfig{Rate: testRate, Duration: 60, BPM: 72, Noise: 0.02, Wander: 0.1, Seed: 3})
	header := Header{"记录日期": "2024-05-01", "分类": "窦性心律"}

	rec, err := a.Analyze("rec-1", header, series)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if rec.ID != "rec-1" || rec.RecordDate != "2024-05-01" || rec.Classification != "窦性心律" {
		t.Errorf("header fields not carried: %+v", rec)
	}
	if d := rec.TotalBeats - len(truth); d < -1 || d > 1 {
		t.Errorf("TotalBeats = %d, want ~%d", rec.TotalBeats, len(truth))
	}
	if math.Abs(rec.HeartRate.Mean-72) > 2 {
		t.Errorf("mean HR = %.2f", rec.HeartRate.Mean)
	}
	if math.Abs(rec.Duration-60) > 1e-9 {
		t.Errorf("Duration = %v", rec.Duration)
	}
	if len(rec.Arrhythmia) != 0 {
		t.Errorf("unexpected flags %v", rec.Arrhythmia)
	}
	if rec.Trend == nil || len(rec.Trend.Windows) != 2 {
		t.Errorf("expected trend over 2 windows, got %+v", rec.Trend)
	}
	if len(rec.RateProfile) != 6 {
		t.Errorf("expected 6 profile points, got %d", len(rec.RateProfile))
	}
	if rec.Health.Score < 0 || rec.Health.Score > 100 {
		t.Errorf("score out of range: %d", rec.Health.Score)
	}
	if rec.SpectralRate < 40 || rec.SpectralRate > 200 {
		t.Errorf("spectral rate %v outside search band", rec.SpectralRate)
	}
	if len(rec.Conditioned) != series.Len() || len(rec.Raw) != series.Len() {
		t.Error("conditioned/raw samples not retained")
	}
}

func TestAnalyze_DefaultsAndDegenerate(t *testing.T) {
	a, _ := NewAnalyzer(nil)
	rec, err := a.Analyze("", nil, SampleSeries{Samples: make([]float64, 3000)})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected generated ID")
	}
	if rec.SampleRate != DefaultConfig().SampleRate {
		t.Errorf("expected default sample rate, got %v", rec.SampleRate)
	}
	if rec.RecordDate != Unknown || rec.Classification != Unknown {
		t.Errorf("expected Unknown header fields, got %q %q", rec.RecordDate, rec.Classification)
	}
	if rec.TotalBeats != 0 || !rec.HeartRate.Degenerate() || !rec.HRV.Degenerate() || rec.Trend != nil {
		t.Errorf("expected degenerate record, got %+v", rec)
	}
	// 0 心率 -> 过低，SDNN 0 -> 过低
	if rec.Health.Score != 75 {
		t.Errorf("expected score 75, got %d", rec.Health.Score)
	}
}

func TestAnalyze_Malformed(t *testing.T) {
	a, _ := NewAnalyzer(DefaultConfig())
	cases := map[string]SampleSeries{
		"empty": {Rate: testRate},
		"nan":   {Samples: []float64{1, math.NaN(), 2}, Rate: testRate},
		"short": {Samples: []float64{1, 2, 3, 4, 5}, Rate: testRate},
	}
	for name, s := range cases {
		if _, err := a.Analyze(name, nil, s); !errors.Is(err, ErrMalformedInput) {
			t.Errorf("%s: expected ErrMalformedInput, got %v", name, err)
		}
	}
}

func TestNewAnalyzer_CopiesConfig(t *testing.T) {
	cfg := DefaultConfig()
	a, _ := NewAnalyzer(cfg)
	cfg.SampleRate = 1
	if a.Config().SampleRate == 1 {
		t.Error("analyzer shares caller's config")
	}

	cfg.SampleRate = -1
	if _, err := NewAnalyzer(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

type failingSource struct{ name string }

func (f failingSource) ID() string { return f.name }
func (f failingSource) Load(context.Context) (Header, SampleSeries, error) {
	return nil, SampleSeries{}, errors.New("disk on fire")
}

func TestAnalyzeBatch_IsolatesFailures(t *testing.T) {
	a, _ := NewAnalyzer(DefaultConfig())
	good, _ := Synthesize(SynthConfig{Rate: testRate, Duration: 20, BPM: 80, Seed: 1})

	sources := []Source{
		Recording{Name: "good-1", Series: good},
		Recording{Name: "empty", Series: SampleSeries{Rate: testRate}},
		failingSource{name: "broken"},
		Recording{Name: "good-2", Header: Header{"record_date": "2024-01-02"}, Series: good},
	}
	results := a.AnalyzeBatch(context.Background(), sources)

	if len(results) != len(sources) {
		t.Fatalf("expected %d results, got %d", len(sources), len(results))
	}
	for i, r := range results {
		if r.ID != sources[i].ID() {
			t.Errorf("result %d: ID %q, want %q", i, r.ID, sources[i].ID())
		}
	}
	if results[0].Err != nil || results[3].Err != nil {
		t.Errorf("good sources failed: %v, %v", results[0].Err, results[3].Err)
	}
	if !errors.Is(results[1].Err, ErrMalformedInput) {
		t.Errorf("empty source: expected ErrMalformedInput, got %v", results[1].Err)
	}
	if results[2].Err == nil || results[2].Record != nil {
		t.Error("broken source should fail without a record")
	}

	records := Records(results)
	if len(records) != 2 || records[1].RecordDate != "2024-01-02" {
		t.Errorf("unexpected records %d", len(records))
	}
}

func TestAnalyze_TraceExport(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCsvTraceSink(dir)
	if err != nil {
		t.Fatalf("NewCsvTraceSink failed: %v", err)
	}
	a, _ := NewAnalyzer(DefaultConfig())
	a.SetTrace(sink)

	x, _ := ImpulseTrain(3000, 100, 400)
	rec, err := a.Analyze("trace", nil, SampleSeries{Samples: x, Rate: testRate})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	data, err := os.ReadFile(sink.Path("trace"))
	if err != nil {
		t.Fatalf("trace file missing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "Time,Raw,Conditioned,Envelope,Threshold,Peak" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if len(lines) != len(x)+1 {
		t.Errorf("expected %d rows, got %d", len(x)+1, len(lines))
	}
	marked := 0
	for _, l := range lines[1:] {
		if strings.HasSuffix(l, ",1") {
			marked++
		}
	}
	if marked != rec.TotalBeats {
		t.Errorf("marked %d peaks, record has %d", marked, rec.TotalBeats)
	}
}
