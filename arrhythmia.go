package ecg

// Flag 心律警告
type Flag string

const (
	FlagTachycardia Flag = "tachycardia"
	FlagBradycardia Flag = "bradycardia"
	FlagIrregular   Flag = "irregular-rhythm"
)

// Label 返回警告的可读文本
func (f Flag) Label() string {
	switch f {
	case FlagTachycardia:
		return "possible tachycardia"
	case FlagBradycardia:
		return "possible bradycardia"
	case FlagIrregular:
		return "possible irregular rhythm"
	}
	return string(f)
}

// ArrhythmiaFlags 触发的警告，顺序固定 (过速, 过缓, 不齐)。空集为正常
type ArrhythmiaFlags []Flag

// Has 是否包含某个警告
func (a ArrhythmiaFlags) Has(f Flag) bool {
	for _, v := range a {
		if v == f {
			return true
		}
	}
	return false
}

// Labels 返回所有警告的文本
func (a ArrhythmiaFlags) Labels() []string {
	out := make([]string, len(a))
	for i, f := range a {
		out[i] = f.Label()
	}
	return out
}

// ClassifyRhythm 对未过滤的 RR 间期应用规则阈值，各规则独立判定
func ClassifyRhythm(peaks PeakSet, rate float64, cfg ArrhythmiaConfig) ArrhythmiaFlags {
	flags := ArrhythmiaFlags{}
	if len(peaks) < 2 {
		return flags
	}

	meanRR, stdRR := popMeanStd(peaks.IntervalsMs(rate))

	// 心率 > 100
	if meanRR < cfg.TachyMeanRRMs {
		flags = append(flags, FlagTachycardia)
	}
	// 心率 < 60
	if meanRR > cfg.BradyMeanRRMs {
		flags = append(flags, FlagBradycardia)
	}
	if stdRR > cfg.IrregularStdRRMs {
		flags = append(flags, FlagIrregular)
	}
	return flags
}
