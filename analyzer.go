package ecg

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Source 是一条待分析记录的来源 (文件、内存、串口)
type Source interface {
	ID() string
	Load(ctx context.Context) (Header, SampleSeries, error)
}

// Recording 内存中的记录，直接实现 Source
type Recording struct {
	Name   string
	Header Header
	Series SampleSeries
}

func (r Recording) ID() string { return r.Name }

func (r Recording) Load(ctx context.Context) (Header, SampleSeries, error) {
	return r.Header, r.Series, ctx.Err()
}

// BatchResult 批量分析中一个来源的结果，Record 与 Err 二者只有一个非空
type BatchResult struct {
	ID     string
	Record *AnalysisRecord
	Err    error
}

// Analyzer 单条记录分析流水线。配置在构造时复制，之后只读，可并发使用
type Analyzer struct {
	cfg   Config
	trace TraceSink
}

// NewAnalyzer 校验并复制配置
func NewAnalyzer(cfg *Config) (*Analyzer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{cfg: *cfg, trace: NoOpTrace{}}, nil
}

// Config 返回配置副本
func (a *Analyzer) Config() Config { return a.cfg }

// SetTrace 设置逐采样导出 (必须在开始分析前调用)
func (a *Analyzer) SetTrace(sink TraceSink) {
	if sink == nil {
		sink = NoOpTrace{}
	}
	a.trace = sink
}

// Analyze 对一条记录运行完整流水线。
// series.Rate 未设置时使用配置中的默认采样率；id 为空时生成一个
func (a *Analyzer) Analyze(id string, header Header, series SampleSeries) (*AnalysisRecord, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if series.Rate <= 0 {
		series.Rate = a.cfg.SampleRate
	}

	// 1. 预处理
	conditioned, err := Condition(series, a.cfg.Conditioner)
	if err != nil {
		return nil, fmt.Errorf("%s: condition: %w", id, err)
	}

	// 2. R 峰
	trace, err := TracePeaks(conditioned, a.cfg.Peaks)
	if err != nil {
		return nil, fmt.Errorf("%s: detect peaks: %w", id, err)
	}
	peaks := trace.Peaks
	rate := conditioned.Rate

	// 3. 各项指标
	hr := EstimateHeartRate(peaks, rate, a.cfg.HeartRate)
	hrv := ComputeHRV(peaks, rate, a.cfg.HRV)
	flags := ClassifyRhythm(peaks, rate, a.cfg.Arrhythmia)
	trend := AnalyzeTrend(conditioned.Len(), peaks, rate, a.cfg.Trend)
	profile := WindowRates(conditioned.Len(), peaks, rate, a.cfg.Trend.ProfileWindowSec, a.cfg.Trend.MinBeats)
	spectral, _ := NewSpectrumAnalyzer(rate, a.cfg.HeartRate.MinBPM, a.cfg.HeartRate.MaxBPM).DominantRate(trace.Envelope)

	rec := &AnalysisRecord{
		ID:             id,
		RecordDate:     header.Lookup(RecordDateKeys...),
		Classification: header.Lookup(ClassificationKeys...),
		SampleRate:     rate,
		HeartRate:      hr,
		HRV:            hrv,
		Arrhythmia:     flags,
		Trend:          trend,
		RateProfile:    profile,
		Health:         ScoreHealth(hr, hrv, flags, a.cfg.Score),
		SpectralRate:   spectral,
		Quality:        AssessQuality(series),
		TotalBeats:     len(peaks),
		Duration:       series.Duration(),
		Raw:            series.Samples,
		Conditioned:    conditioned.Samples,
		Peaks:          peaks,
	}
	if rec.RateProfile == nil {
		rec.RateProfile = []RatePoint{}
	}

	if err := a.trace.Record(rec, trace); err != nil {
		log.Printf("[ANALYZE] %s: trace export failed: %v", id, err)
	}
	log.Printf("[ANALYZE] %s: %d beats in %.1fs, HR %.1f bpm, SDNN %.1f ms, score %d (%s)",
		id, rec.TotalBeats, rec.Duration, hr.Mean, hrv.SDNN, rec.Health.Score, rec.Health.Level)
	return rec, nil
}

// AnalyzeSource 加载并分析一个来源
func (a *Analyzer) AnalyzeSource(ctx context.Context, src Source) (*AnalysisRecord, error) {
	header, series, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: load: %w", src.ID(), err)
	}
	return a.Analyze(src.ID(), header, series)
}

// AnalyzeBatch 并发分析多个来源，结果顺序与输入一致。
// 单个来源失败只记录在对应的 BatchResult 里，不影响其他来源
func (a *Analyzer) AnalyzeBatch(ctx context.Context, sources []Source) []BatchResult {
	results := make([]BatchResult, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i].ID = src.ID()
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			rec, err := a.AnalyzeSource(ctx, src)
			if err != nil {
				log.Printf("[BATCH] %s skipped: %v", src.ID(), err)
				results[i].Err = err
				return nil
			}
			results[i].Record = rec
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Printf("[BATCH] %d sources, %d analyzed, %d failed", len(sources), len(sources)-failed, failed)
	return results
}

// Records 提取批量结果中成功的记录
func Records(results []BatchResult) []AnalysisRecord {
	out := make([]AnalysisRecord, 0, len(results))
	for _, r := range results {
		if r.Record != nil {
			out = append(out, *r.Record)
		}
	}
	return out
}
