package Population

import (
	"errors"
	"sort"

	"ecg"

	"gonum.org/v1/gonum/mat"
)

// NotAvailable 是空语料的日期占位
const NotAvailable = "N/A"

// Anomaly 一条被判为异常的记录及其关键指标
type Anomaly struct {
	ID       string   `json:"id"`
	Date     string   `json:"date"`
	MeanHR   float64  `json:"mean_hr"`
	SDNN     float64  `json:"sdnn"`
	Warnings []string `json:"warnings"`
	Score    float64  `json:"score"` // 隔离森林异常分数
}

// Report 一批记录的群体分析结果
type Report struct {
	TotalRecords int              `json:"total_records"`
	DateStart    string           `json:"date_start"`
	DateEnd      string           `json:"date_end"`
	Dates        []string         `json:"dates"`
	MeanHR       []float64        `json:"mean_hr"`
	SDNN         []float64        `json:"sdnn"`
	RMSSD        []float64        `json:"rmssd"`
	PNN50        []float64        `json:"pnn50"`
	HealthScores []int            `json:"health_scores"`
	FlagCounts   map[string][]int `json:"flag_counts"` // 每类心律警告在各条记录 (按日期) 中出现的次数
	Beats        []int            `json:"beats"`
	Durations    []float64        `json:"durations"`
	Anomalies    []Anomaly        `json:"anomalies"`
	Forecast     *Forecast        `json:"forecast,omitempty"`
	ForecastNote string           `json:"forecast_note,omitempty"` // 没有预测时的原因
}

// SortByDate 返回按记录日期排序的副本 (稳定排序，不修改输入)
func SortByDate(records []ecg.AnalysisRecord) []ecg.AnalysisRecord {
	out := append([]ecg.AnalysisRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordDate < out[j].RecordDate })
	return out
}

// Analyze 对语料做汇总、异常检测和平均心率预测。不会返回错误：
// 预测失败时 Forecast 为 nil，原因写在 ForecastNote
func Analyze(records []ecg.AnalysisRecord, cfg ecg.PopulationConfig) Report {
	corpus := SortByDate(records)

	r := Report{
		TotalRecords: len(corpus),
		DateStart:    NotAvailable,
		DateEnd:      NotAvailable,
		Dates:        make([]string, len(corpus)),
		MeanHR:       make([]float64, len(corpus)),
		SDNN:         make([]float64, len(corpus)),
		RMSSD:        make([]float64, len(corpus)),
		PNN50:        make([]float64, len(corpus)),
		HealthScores: make([]int, len(corpus)),
		FlagCounts:   map[string][]int{},
		Beats:        make([]int, len(corpus)),
		Durations:    make([]float64, len(corpus)),
	}
	if len(corpus) > 0 {
		r.DateStart = corpus[0].RecordDate
		r.DateEnd = corpus[len(corpus)-1].RecordDate
	}
	for i, rec := range corpus {
		r.Dates[i] = rec.RecordDate
		r.MeanHR[i] = rec.HeartRate.Mean
		r.SDNN[i] = rec.HRV.SDNN
		r.RMSSD[i] = rec.HRV.RMSSD
		r.PNN50[i] = rec.HRV.PNN50
		r.HealthScores[i] = rec.Health.Score
		r.Beats[i] = rec.TotalBeats
		r.Durations[i] = rec.Duration
		for _, f := range rec.Arrhythmia {
			counts, ok := r.FlagCounts[string(f)]
			if !ok {
				counts = make([]int, len(corpus))
				r.FlagCounts[string(f)] = counts
			}
			counts[i]++
		}
	}

	r.Anomalies = detectSorted(corpus, cfg)

	f, err := forecastSorted(corpus, cfg)
	if err != nil {
		r.ForecastNote = err.Error()
	} else {
		r.Forecast = f
	}
	return r
}

// ForecastMeanHR 用 Holt-Winters 外推语料的平均心率，语料先按日期排序
func ForecastMeanHR(records []ecg.AnalysisRecord, cfg ecg.PopulationConfig) (*Forecast, error) {
	return forecastSorted(SortByDate(records), cfg)
}

func forecastSorted(corpus []ecg.AnalysisRecord, cfg ecg.PopulationConfig) (*Forecast, error) {
	series := make([]float64, len(corpus))
	dates := make([]string, len(corpus))
	for i, rec := range corpus {
		series[i] = rec.HeartRate.Mean
		dates[i] = rec.RecordDate
	}
	f, err := HoltWinters(series, cfg.SeasonalPeriod, cfg.Horizon, cfg.MinRecords)
	if err != nil {
		return nil, err
	}
	f.Dates = dates
	return f, nil
}

// IsUnavailable 预测错误是否属于可降级的情况 (数据不足或拟合失败)
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrInsufficientRecords) || errors.Is(err, ErrForecastUnavailable)
}

// DetectAnomalies 以 [平均心率, 心率标准差, SDNN, RMSSD] 为特征，
// 标准化后用隔离森林找出异常记录。记录数不足时返回空列表
func DetectAnomalies(records []ecg.AnalysisRecord, cfg ecg.PopulationConfig) []Anomaly {
	return detectSorted(SortByDate(records), cfg)
}

func detectSorted(corpus []ecg.AnalysisRecord, cfg ecg.PopulationConfig) []Anomaly {
	anomalies := []Anomaly{}
	if len(corpus) < max(cfg.MinRecords, 2) {
		return anomalies
	}

	features := mat.NewDense(len(corpus), 4, nil)
	for i, rec := range corpus {
		features.SetRow(i, []float64{rec.HeartRate.Mean, rec.HeartRate.Std, rec.HRV.SDNN, rec.HRV.RMSSD})
	}
	scaled := Standardize(features)

	forest := NewIsolationForest(cfg.Trees, cfg.MaxSamples, cfg.Contamination, cfg.Seed)
	for i, outlier := range forest.FitPredict(scaled) {
		if !outlier {
			continue
		}
		rec := corpus[i]
		anomalies = append(anomalies, Anomaly{
			ID:       rec.ID,
			Date:     rec.RecordDate,
			MeanHR:   rec.HeartRate.Mean,
			SDNN:     rec.HRV.SDNN,
			Warnings: rec.Warnings(),
			Score:    forest.Score(scaled.RawRowView(i)),
		})
	}
	return anomalies
}
