package ecg

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// TraceSink 定义逐采样导出接口
// Analyzer 只依赖这个接口，不依赖具体的文件操作
type TraceSink interface {
	Record(rec *AnalysisRecord, trace *PeakTrace) error
	Close() error
}

// CsvTraceSink 把每条记录写成 <dir>/<id>.csv，供绘图使用。
// 每条记录一个文件，批量并发调用时互不干扰
type CsvTraceSink struct {
	dir string
}

// NewCsvTraceSink 创建导出目录
func NewCsvTraceSink(dir string) (*CsvTraceSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &CsvTraceSink{dir: dir}, nil
}

// Path 返回某条记录的导出路径
func (d *CsvTraceSink) Path(id string) string {
	return filepath.Join(d.dir, id+".csv")
}

// Record 写入一条记录的全部采样
func (d *CsvTraceSink) Record(rec *AnalysisRecord, trace *PeakTrace) error {
	f, err := os.Create(d.Path(rec.ID))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	// 写入表头
	if _, err := w.WriteString("Time,Raw,Conditioned,Envelope,Threshold,Peak\n"); err != nil {
		return err
	}

	isPeak := make(map[int]bool, len(rec.Peaks))
	for _, p := range rec.Peaks {
		isPeak[p] = true
	}
	threshold := 0.0
	var envelope []float64
	if trace != nil {
		threshold = trace.Threshold
		envelope = trace.Envelope
	}

	for i := range rec.Conditioned {
		raw := 0.0
		if i < len(rec.Raw) {
			raw = rec.Raw[i]
		}
		// 包络比采样少一个点 (差分)
		env := 0.0
		if i < len(envelope) {
			env = envelope[i]
		}
		peak := 0
		if isPeak[i] {
			peak = 1
		}
		fmt.Fprintf(w, "%f,%f,%f,%f,%f,%d\n", float64(i)/rec.SampleRate, raw, rec.Conditioned[i], env, threshold, peak)
	}
	return w.Flush()
}

// Close 目录导出没有需要释放的资源
func (d *CsvTraceSink) Close() error { return nil }

// NoOpTrace 是一个空实现，不导出时使用
// 这样可以避免在核心代码中写大量的 if sink != nil check
type NoOpTrace struct{}

func (NoOpTrace) Record(*AnalysisRecord, *PeakTrace) error { return nil }
func (NoOpTrace) Close() error                             { return nil }
