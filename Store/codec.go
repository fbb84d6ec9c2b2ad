package Store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
)

// encodeSamples float64 小端序列后 snappy 压缩
func encodeSamples(x []float64) []byte {
	raw := make([]byte, 8*len(x))
	for i, v := range x {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return snappy.Encode(nil, raw)
}

func decodeSamples(blob []byte) ([]float64, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("decode samples: %d bytes is not a multiple of 8", len(raw))
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return out, nil
}

// encodePeaks 峰下标严格递增，存相邻差值的 uvarint
func encodePeaks(peaks []int) []byte {
	raw := make([]byte, 0, 2*len(peaks))
	prev := 0
	for _, p := range peaks {
		raw = binary.AppendUvarint(raw, uint64(p-prev))
		prev = p
	}
	return snappy.Encode(nil, raw)
}

func decodePeaks(blob []byte) ([]int, error) {
	if len(blob) == 0 {
		return []int{}, nil
	}
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("decode peaks: %w", err)
	}
	out := []int{}
	prev := 0
	for len(raw) > 0 {
		d, n := binary.Uvarint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("decode peaks: corrupt varint")
		}
		prev += int(d)
		out = append(out, prev)
		raw = raw[n:]
	}
	return out, nil
}
