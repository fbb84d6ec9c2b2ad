package Population

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"ecg"
)

func record(id, date string, hr, std, sdnn, rmssd float64) ecg.AnalysisRecord {
	return ecg.AnalysisRecord{
		ID:         id,
		RecordDate: date,
		HeartRate:  ecg.HeartRateStats{Mean: hr, Std: std, Count: 10},
		HRV:        ecg.HRVMetrics{SDNN: sdnn, RMSSD: rmssd, Intervals: 10},
		Arrhythmia: ecg.ArrhythmiaFlags{},
	}
}

func corpus(n int) []ecg.AnalysisRecord {
	out := make([]ecg.AnalysisRecord, n)
	for i := range out {
		// 倒序日期，检验排序
		out[i] = record(fmt.Sprintf("r%02d", i), fmt.Sprintf("2024-01-%02d", n-i),
			70+float64(i%3), 3+float64(i%2), 45+float64(i%4), 35+float64(i%5))
	}
	return out
}

func TestSmallCorpusIsDegenerate(t *testing.T) {
	cfg := ecg.DefaultConfig().Population
	for n := 0; n < 3; n++ {
		records := corpus(n)

		if got := DetectAnomalies(records, cfg); got == nil || len(got) != 0 {
			t.Errorf("n=%d: expected empty anomaly list, got %v", n, got)
		}
		f, err := ForecastMeanHR(records, cfg)
		if f != nil || !errors.Is(err, ErrInsufficientRecords) {
			t.Errorf("n=%d: expected ErrInsufficientRecords, got %v, %v", n, f, err)
		}

		r := Analyze(records, cfg)
		if r.Forecast != nil || r.ForecastNote == "" {
			t.Errorf("n=%d: expected absent forecast with note, got %+v", n, r.Forecast)
		}
		if r.TotalRecords != n {
			t.Errorf("n=%d: TotalRecords = %d", n, r.TotalRecords)
		}
	}
}

func TestEmptyReportDates(t *testing.T) {
	r := Analyze(nil, ecg.DefaultConfig().Population)
	if r.DateStart != NotAvailable || r.DateEnd != NotAvailable {
		t.Errorf("expected N/A dates, got %q - %q", r.DateStart, r.DateEnd)
	}
}

func TestReportSortedByDate(t *testing.T) {
	records := corpus(5)
	r := Analyze(records, ecg.DefaultConfig().Population)

	if r.DateStart != "2024-01-01" || r.DateEnd != "2024-01-05" {
		t.Errorf("unexpected date range %s - %s", r.DateStart, r.DateEnd)
	}
	for i := 1; i < len(r.Dates); i++ {
		if r.Dates[i] < r.Dates[i-1] {
			t.Fatalf("dates not sorted: %v", r.Dates)
		}
	}
	// 输入不被修改
	if records[0].RecordDate != "2024-01-05" {
		t.Error("Analyze reordered the caller's slice")
	}
}

// daily 按给定心率序列生成逐日记录
func daily(hrs ...float64) []ecg.AnalysisRecord {
	out := make([]ecg.AnalysisRecord, len(hrs))
	for i, hr := range hrs {
		out[i] = record(fmt.Sprintf("d%02d", i), fmt.Sprintf("2024-03-%02d", i+1), hr, 0, 0, 0)
	}
	return out
}

func TestForecastNeverFails(t *testing.T) {
	cfg := ecg.DefaultConfig().Population
	constant := make([]float64, 14)
	spiky := make([]float64, 14)
	for i := range constant {
		constant[i] = 70
		if i%3 == 2 {
			spiky[i] = 180
		}
	}
	cases := map[string][]ecg.AnalysisRecord{
		"seasonal":   corpus(21),
		"two weeks":  corpus(14),
		"constant":   daily(constant...),
		"degenerate": daily(spiky...),
	}
	for name, records := range cases {
		r := Analyze(records, cfg)
		if r.Forecast == nil {
			t.Errorf("%s: expected forecast, got note %q", name, r.ForecastNote)
			continue
		}
		if len(r.Forecast.Values) != cfg.Horizon || len(r.Forecast.Labels) != cfg.Horizon {
			t.Errorf("%s: expected %d forecast points", name, cfg.Horizon)
		}
		for _, v := range r.Forecast.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("%s: non-finite forecast %v", name, r.Forecast.Values)
			}
		}
		if r.Forecast.Labels[0] != "day+1" {
			t.Errorf("%s: unexpected label %q", name, r.Forecast.Labels[0])
		}
	}
}

func TestForecastNeedsTwoSeasons(t *testing.T) {
	cfg := ecg.DefaultConfig().Population
	for _, n := range []int{3, 5, 13} {
		records := corpus(n)
		f, err := ForecastMeanHR(records, cfg)
		if f != nil || !errors.Is(err, ErrForecastUnavailable) {
			t.Errorf("n=%d: expected ErrForecastUnavailable, got %v, %v", n, f, err)
		}

		// 报告照常生成，只是没有预测
		r := Analyze(records, cfg)
		if r.Forecast != nil || r.ForecastNote == "" || r.TotalRecords != n {
			t.Errorf("n=%d: forecast %+v, note %q", n, r.Forecast, r.ForecastNote)
		}
	}

	if _, err := HoltWinters([]float64{70, 72, 75, 71, 74}, 7, 7, 3); !errors.Is(err, ErrForecastUnavailable) {
		t.Errorf("five points with period 7: got %v", err)
	}
}

func TestHoltWintersSeasonal(t *testing.T) {
	long := make([]float64, 28)
	for i := range long {
		long[i] = 70 + 5*math.Sin(2*math.Pi*float64(i)/7)
	}
	f, err := HoltWinters(long, 7, 7, 3)
	if err != nil {
		t.Fatalf("HoltWinters failed: %v", err)
	}
	for h, v := range f.Values {
		want := 70 + 5*math.Sin(2*math.Pi*float64(28+h)/7)
		if math.Abs(v-want) > 1.5 {
			t.Errorf("h=%d: forecast %.2f, want ~%.2f", h+1, v, want)
		}
	}
	if len(f.Historical) != len(long) {
		t.Errorf("Historical has %d points", len(f.Historical))
	}

	// 线性上升的两周数据，外推继续上升 (季节项初值吸收了一部分趋势，不要求精确)
	rising := make([]float64, 14)
	for i := range rising {
		rising[i] = 60 + float64(i)
	}
	f, err = HoltWinters(rising, 7, 3, 3)
	if err != nil {
		t.Fatalf("HoltWinters failed: %v", err)
	}
	if f.Values[0] < 65 || f.Values[2] <= f.Values[0] {
		t.Errorf("expected rising forecast, got %v", f.Values)
	}
}

func TestHoltWintersRejectsNonFinite(t *testing.T) {
	_, err := HoltWinters([]float64{70, math.NaN(), 72}, 7, 3, 3)
	if !errors.Is(err, ErrForecastUnavailable) {
		t.Errorf("expected ErrForecastUnavailable, got %v", err)
	}
	if !IsUnavailable(err) {
		t.Error("IsUnavailable should accept forecast errors")
	}
}

func TestDetectAnomaliesFindsOutlier(t *testing.T) {
	records := corpus(20)
	records = append(records, record("odd", "2024-02-01", 150, 40, 250, 300))

	anomalies := DetectAnomalies(records, ecg.DefaultConfig().Population)
	if len(anomalies) == 0 {
		t.Fatal("expected at least one anomaly")
	}
	found := false
	for _, a := range anomalies {
		if a.ID == "odd" {
			found = true
			if a.MeanHR != 150 || a.SDNN != 250 {
				t.Errorf("unexpected metrics %+v", a)
			}
		}
	}
	if !found {
		t.Errorf("outlier not flagged: %+v", anomalies)
	}
	if len(anomalies) > 3 {
		t.Errorf("too many anomalies for contamination 0.1: %d", len(anomalies))
	}
}

func TestDetectAnomaliesDeterministic(t *testing.T) {
	records := corpus(15)
	cfg := ecg.DefaultConfig().Population
	a := DetectAnomalies(records, cfg)
	b := DetectAnomalies(records, cfg)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("non-deterministic order at %d", i)
		}
	}
}

func TestPercentile(t *testing.T) {
	data := []float64{4, 1, 3, 2}
	tests := []struct {
		p, want float64
	}{
		{0, 1}, {100, 4}, {50, 2.5}, {90, 3.7},
	}
	for _, tt := range tests {
		if got := Percentile(data, tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if !math.IsNaN(Percentile(nil, 50)) {
		t.Error("expected NaN for empty input")
	}
}

func TestAveragePath(t *testing.T) {
	if averagePath(1) != 0 || averagePath(2) != 1 {
		t.Error("unexpected small-sample path lengths")
	}
	// c(256) ≈ 10.24
	if c := averagePath(256); math.Abs(c-10.24) > 0.01 {
		t.Errorf("averagePath(256) = %v", c)
	}
}

func TestFlagCountsPerRecord(t *testing.T) {
	records := corpus(4) // 日期倒序：r00 是最后一天
	records[0].Arrhythmia = ecg.ArrhythmiaFlags{ecg.FlagTachycardia, ecg.FlagIrregular}
	records[3].Arrhythmia = ecg.ArrhythmiaFlags{ecg.FlagTachycardia}

	r := Analyze(records, ecg.DefaultConfig().Population)
	want := map[string][]int{
		"tachycardia":      {1, 0, 0, 1},
		"irregular-rhythm": {0, 0, 0, 1},
	}
	if len(r.FlagCounts) != len(want) {
		t.Fatalf("FlagCounts = %v", r.FlagCounts)
	}
	for flag, counts := range want {
		got := r.FlagCounts[flag]
		if len(got) != len(counts) {
			t.Fatalf("%s: got %v, want %v", flag, got, counts)
		}
		for i := range counts {
			if got[i] != counts[i] {
				t.Errorf("%s: got %v, want %v", flag, got, counts)
				break
			}
		}
	}
}
