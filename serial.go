package ecg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/tarm/serial"
)

// 前端板每行输出一个 ADC 采样，导联脱落时输出 "!"
const leadOffMarker = "!"

// SerialPort 定义串口操作接口，方便测试 Mock
type SerialPort interface {
	io.ReadWriteCloser
}

// SerialSource 从 ECG 前端板 (如 AD8232 + MCU) 的串口采集一段记录
type SerialSource struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	Duration    time.Duration
	SampleRate  float64

	conn SerialPort
	id   string

	// 最近一次采集的统计
	LeadOff int
	Invalid int
}

// NewSerialSource 按采集配置创建串口来源
func NewSerialSource(cfg AcquisitionConfig, sampleRate float64) *SerialSource {
	return &SerialSource{
		Port:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
		Duration:    cfg.Duration,
		SampleRate:  sampleRate,
	}
}

// Open 打开串口连接
func (s *SerialSource) Open() error {
	config := &serial.Config{
		Name:        s.Port,
		Baud:        s.BaudRate,
		ReadTimeout: s.ReadTimeout,
	}
	p, err := serial.OpenPort(config)
	if err != nil {
		return err
	}
	s.conn = p
	s.ID()
	return nil
}

// Close 关闭串口连接
func (s *SerialSource) Close() error {
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// ID 在第一次调用时按当前时间生成，之后保持不变
func (s *SerialSource) ID() string {
	if s.id == "" {
		s.id = "serial-" + time.Now().Format("20060102-150405")
	}
	return s.id
}

// Load 打开串口 (如果还没打开)，采集 Duration 时长的数据后关闭
func (s *SerialSource) Load(ctx context.Context) (Header, SampleSeries, error) {
	if s.conn == nil {
		if err := s.Open(); err != nil {
			return nil, SampleSeries{}, fmt.Errorf("open %s: %w", s.Port, err)
		}
		defer s.Close()
	}

	want := int(s.Duration.Seconds() * s.SampleRate)
	samples, err := s.Acquire(ctx, want)
	if err != nil {
		return nil, SampleSeries{}, err
	}

	header := Header{
		RecordDateKeys[1]: time.Now().Format("2006-01-02"),
		SampleRateKeys[1]: strconv.FormatFloat(s.SampleRate, 'f', -1, 64),
		"lead_off":        strconv.Itoa(s.LeadOff),
	}
	return header, SampleSeries{Samples: samples, Rate: s.SampleRate}, nil
}

// Acquire 读取最多 n 个采样。ctx 取消或串口 EOF 时返回已采集的部分。
// "!" 行记作 0 并计入 LeadOff，无法解析的行丢弃并计入 Invalid
func (s *SerialSource) Acquire(ctx context.Context, n int) ([]float64, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("connection not open")
	}
	s.LeadOff, s.Invalid = 0, 0

	samples := make([]float64, 0, n)
	buf := make([]byte, 1024)
	var pending []byte

	for len(samples) < n {
		if ctx.Err() != nil {
			log.Printf("[SERIAL] acquisition cancelled after %d samples", len(samples))
			break
		}

		m, err := s.conn.Read(buf)
		pending = append(pending, buf[:m]...)

		// 按行切分，末尾不完整的行留到下次
		for len(samples) < n {
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := string(bytes.TrimSpace(pending[:idx]))
			pending = pending[idx+1:]
			s.handleLine(line, &samples)
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.Port, err)
		}
		// 读超时 (m == 0) 时继续等待
	}

	if s.LeadOff > 0 || s.Invalid > 0 {
		log.Printf("[SERIAL] %d samples, %d lead-off, %d invalid lines", len(samples), s.LeadOff, s.Invalid)
	}
	return samples, nil
}

func (s *SerialSource) handleLine(line string, samples *[]float64) {
	switch line {
	case "":
		return
	case leadOffMarker:
		s.LeadOff++
		*samples = append(*samples, 0)
		return
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		s.Invalid++
		return
	}
	*samples = append(*samples, v)
}
