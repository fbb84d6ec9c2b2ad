package ecg

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// 导出格式：前 10 行 key,"value" 头信息，数据从第 13 行开始，取第一列
const (
	csvHeaderLines = 10
	csvSkipLines   = 12
)

// LoadCSV 读取心电图导出文件。
// 头信息中出现采样率时使用它，否则 Rate 为 0，由 Analyzer 使用默认采样率
func LoadCSV(path string) (Header, SampleSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, SampleSeries{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	defer f.Close()

	header := Header{}
	var samples []float64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}

		if line <= csvHeaderLines {
			if key, value, ok := strings.Cut(text, ","); ok {
				header[strings.Trim(key, `"`)] = strings.Trim(value, `"`)
			}
			continue
		}
		if line <= csvSkipLines || text == "" {
			continue
		}

		field, _, _ := strings.Cut(text, ",")
		v, err := strconv.ParseFloat(strings.Trim(strings.TrimSpace(field), `"`), 64)
		if err != nil {
			return nil, SampleSeries{}, fmt.Errorf("%w: %s line %d: %v", ErrMalformedInput, path, line, err)
		}
		samples = append(samples, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, SampleSeries{}, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
	}
	if len(samples) == 0 {
		return nil, SampleSeries{}, fmt.Errorf("%w: %s: no samples", ErrMalformedInput, path)
	}

	return header, SampleSeries{Samples: samples, Rate: headerRate(header)}, nil
}

// headerRate 从头信息解析采样率，如 "510.852Hz"。解析不出返回 0
func headerRate(h Header) float64 {
	v := h.Lookup(SampleRateKeys...)
	if v == Unknown {
		return 0
	}
	end := 0
	for end < len(v) && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	rate, err := strconv.ParseFloat(v[:end], 64)
	if err != nil || rate <= 0 {
		return 0
	}
	return rate
}

// FileSource 以文件作为 Source，按扩展名选择解析方式
type FileSource struct {
	Path string
}

// ID 取文件名 (不含扩展名)
func (s FileSource) ID() string {
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s FileSource) Load(ctx context.Context) (Header, SampleSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, SampleSeries{}, err
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".csv", ".txt":
		return LoadCSV(s.Path)
	case ".wav":
		return LoadWav(s.Path)
	}
	return nil, SampleSeries{}, fmt.Errorf("%w: unsupported file type %q", ErrMalformedInput, s.Path)
}

// Glob 把目录下所有支持的文件转成 Source，按文件名排序
func Glob(dir string) ([]Source, error) {
	var sources []Source
	for _, pattern := range []string{"*.csv", "*.wav"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			sources = append(sources, FileSource{Path: m})
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID() < sources[j].ID() })
	return sources, nil
}

// SaveCSV 按导出格式写一条记录：头信息占满前 10 行 (含采样率)，之后每行一个采样
func SaveCSV(path string, header Header, series SampleSeries) error {
	fields := Header{}
	for k, v := range header {
		fields[k] = v
	}
	if series.Rate > 0 && fields.Lookup(SampleRateKeys...) == Unknown {
		fields[SampleRateKeys[1]] = strconv.FormatFloat(series.Rate, 'g', -1, 64) + "Hz"
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > csvHeaderLines {
		keys = keys[:csvHeaderLines]
	}
	for i := 0; i < csvHeaderLines; i++ {
		if i < len(keys) {
			fmt.Fprintf(w, "%s,\"%s\"\n", keys[i], fields[keys[i]])
		} else {
			w.WriteString("\n")
		}
	}
	w.WriteString("\nValue\n")
	for _, v := range series.Samples {
		w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
