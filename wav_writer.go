package ecg

import (
	"encoding/binary"
	"io"
	"math"
	"os"
)

// WavWriter 简单的 WAV 文件写入器 (16-bit PCM 单声道)
type WavWriter struct {
	file       *os.File
	sampleRate int
	dataSize   int
}

// NewWavWriter 创建新的 WAV 写入器
func NewWavWriter(filename string, sampleRate int) (*WavWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	// 写入占位符头 (44字节)
	// 稍后在 Close 时我们会回写正确的大小
	header := make([]byte, 44)
	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, err
	}

	return &WavWriter{
		file:       f,
		sampleRate: sampleRate,
	}, nil
}

// WriteSamples 写入 -1.0 ~ 1.0 的采样，超出部分限幅
func (w *WavWriter) WriteSamples(samples []float64) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s*32767)))
	}

	n, err := w.file.Write(buf)
	if err != nil {
		return err
	}
	w.dataSize += n
	return nil
}

// Close 回写 WAV 头并关闭文件
func (w *WavWriter) Close() error {
	header := make([]byte, 44)

	// RIFF header
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+w.dataSize))
	copy(header[8:], "WAVE")

	// fmt chunk
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)                     // PCM
	binary.LittleEndian.PutUint16(header[20:], 1)                      // AudioFormat
	binary.LittleEndian.PutUint16(header[22:], 1)                      // NumChannels
	binary.LittleEndian.PutUint32(header[24:], uint32(w.sampleRate))   // SampleRate
	binary.LittleEndian.PutUint32(header[28:], uint32(w.sampleRate*2)) // ByteRate
	binary.LittleEndian.PutUint16(header[32:], 2)                      // BlockAlign
	binary.LittleEndian.PutUint16(header[34:], 16)                     // BitsPerSample

	// data chunk
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(w.dataSize))

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return err
	}
	if _, err := w.file.Write(header); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// SaveWav 按峰值归一化后写入整段序列。采样率取整
func SaveWav(path string, series SampleSeries) error {
	w, err := NewWavWriter(path, int(math.Round(series.Rate)))
	if err != nil {
		return err
	}

	peak := 0.0
	for _, v := range series.Samples {
		peak = math.Max(peak, math.Abs(v))
	}
	scaled := make([]float64, series.Len())
	if peak > 0 {
		for i, v := range series.Samples {
			scaled[i] = v / peak
		}
	}
	if err := w.WriteSamples(scaled); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
