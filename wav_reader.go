package ecg

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
)

// WavReader 简单的 WAV 文件读取器 (仅支持 16-bit PCM Mono/Stereo)
type WavReader struct {
	file       *os.File
	SampleRate int
	Channels   int
	DataSize   int
	remaining  int
}

func NewWavReader(filename string) (*WavReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := newWavReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, filename, err)
	}
	return r, nil
}

func newWavReader(f *os.File) (*WavReader, error) {
	// 读取 RIFF 头
	riffHeader := make([]byte, 12)
	if _, err := io.ReadFull(f, riffHeader); err != nil {
		return nil, err
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, fmt.Errorf("invalid wav file")
	}

	var channels, sampleRate, bitsPerSample, dataSize int
	foundFmt := false

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("missing data chunk")
			}
			return nil, err
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])
		// 奇数长度的块后面有一个填充字节
		padding := int64(chunkSize % 2)

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("fmt chunk too small")
			}
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, fmtData); err != nil {
				return nil, err
			}
			if padding > 0 {
				if _, err := f.Seek(padding, io.SeekCurrent); err != nil {
					return nil, err
				}
			}
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			if bitsPerSample != 16 {
				return nil, fmt.Errorf("only 16-bit wav supported, got %d", bitsPerSample)
			}
			if channels < 1 || sampleRate <= 0 {
				return nil, fmt.Errorf("invalid format: %d channels at %d Hz", channels, sampleRate)
			}
			dataSize = int(chunkSize)
			// 文件指针停在 data 开始处
			return &WavReader{
				file:       f,
				SampleRate: sampleRate,
				Channels:   channels,
				DataSize:   dataSize,
				remaining:  dataSize,
			}, nil
		default:
			// 跳过未知块
			if _, err := f.Seek(int64(chunkSize)+padding, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}
}

// ReadSamples 读取最多 count 帧，只取第一个通道，归一化到 -1.0 ~ 1.0
func (r *WavReader) ReadSamples(count int) ([]float64, error) {
	frame := 2 * r.Channels // 16-bit = 2 bytes
	want := count * frame
	if want > r.remaining {
		want = r.remaining - r.remaining%frame
	}
	if want <= 0 {
		return nil, io.EOF
	}

	buf := make([]byte, want)
	n, err := io.ReadFull(r.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	r.remaining -= n
	numFrames := n / frame
	if numFrames == 0 {
		return nil, io.EOF
	}

	out := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		offset := i * frame
		val := int16(binary.LittleEndian.Uint16(buf[offset : offset+2]))
		out[i] = float64(val) / 32768.0
	}
	return out, nil
}

// ReadAll 读取全部剩余采样
func (r *WavReader) ReadAll() ([]float64, error) {
	out := make([]float64, 0, r.remaining/(2*r.Channels))
	for {
		chunk, err := r.ReadSamples(4096)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

func (r *WavReader) Close() error {
	return r.file.Close()
}

// LoadWav 读取一个 16-bit PCM 录音，采样率取自文件头
func LoadWav(path string) (Header, SampleSeries, error) {
	r, err := NewWavReader(path)
	if err != nil {
		return nil, SampleSeries{}, err
	}
	defer r.Close()

	samples, err := r.ReadAll()
	if err != nil {
		return nil, SampleSeries{}, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
	}
	header := Header{SampleRateKeys[1]: strconv.Itoa(r.SampleRate)}
	return header, SampleSeries{Samples: samples, Rate: float64(r.SampleRate)}, nil
}
