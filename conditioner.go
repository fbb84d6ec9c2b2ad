package ecg

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Condition 信号预处理：高通去基线漂移，低通去高频噪声，均为零相位滤波。
// 输出与输入等长、同采样率，不修改输入
func Condition(series SampleSeries, cfg ConditionerConfig) (SampleSeries, error) {
	if err := series.Validate(); err != nil {
		return SampleSeries{}, err
	}

	hp, err := NewButterworth(cfg.Order, Highpass, series.Rate, cfg.HighpassHz)
	if err != nil {
		return SampleSeries{}, fmt.Errorf("design highpass: %w", err)
	}
	lp, err := NewButterworth(cfg.Order, Lowpass, series.Rate, cfg.LowpassHz)
	if err != nil {
		return SampleSeries{}, fmt.Errorf("design lowpass: %w", err)
	}

	if edge := max(hp.PadLen(), lp.PadLen()); series.Len() <= edge {
		return SampleSeries{}, fmt.Errorf("%w: need more than %d samples, got %d", ErrMalformedInput, edge, series.Len())
	}

	// 常数信号经高通后理论上恒为 0，直接返回，避免浮点残差被当成信号
	if floats.Max(series.Samples) == floats.Min(series.Samples) {
		return SampleSeries{Samples: make([]float64, series.Len()), Rate: series.Rate}, nil
	}

	// 1. 去基线漂移
	out, err := hp.FiltFilt(series.Samples)
	if err != nil {
		return SampleSeries{}, err
	}
	// 2. 去高频噪声
	out, err = lp.FiltFilt(out)
	if err != nil {
		return SampleSeries{}, err
	}
	return SampleSeries{Samples: out, Rate: series.Rate}, nil
}
