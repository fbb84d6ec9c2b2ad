package ecg

// HealthLevel 健康等级
type HealthLevel string

const (
	LevelGood HealthLevel = "Good"
	LevelFair HealthLevel = "Fair"
	LevelPoor HealthLevel = "Poor"
)

// 评分的扣分原因
const (
	WarnLowHR   = "heart rate too low"
	WarnHighHR  = "heart rate too high"
	WarnLowHRV  = "heart rate variability too low"
	WarnHighHRV = "heart rate variability abnormal"
)

const (
	maxHealth   = 100
	hrPenalty   = 10
	lowHRVCost  = 15
	highHRVCost = 10
	perFlagCost = 5
)

// HealthScore 单条记录的综合评分
type HealthScore struct {
	Score    int         `json:"score"` // [0, 100]
	Level    HealthLevel `json:"level"`
	Warnings []string    `json:"warnings"` // 扣分原因，按评估顺序
}

// ScoreHealth 从满分 100 开始按规则扣分：
// 心率越界 -10；SDNN 过低 -15 或过高 -10；每个心律警告 -5
func ScoreHealth(hr HeartRateStats, hrv HRVMetrics, flags ArrhythmiaFlags, cfg ScoreConfig) HealthScore {
	score := maxHealth
	warnings := []string{}

	// 心率评估
	if hr.Mean < cfg.LowHR {
		score -= hrPenalty
		warnings = append(warnings, WarnLowHR)
	} else if hr.Mean > cfg.HighHR {
		score -= hrPenalty
		warnings = append(warnings, WarnHighHR)
	}

	// HRV 评估
	if hrv.SDNN < cfg.LowSDNN {
		score -= lowHRVCost
		warnings = append(warnings, WarnLowHRV)
	} else if hrv.SDNN > cfg.HighSDNN {
		score -= highHRVCost
		warnings = append(warnings, WarnHighHRV)
	}

	// 心律失常评估
	if len(flags) > 0 {
		score -= perFlagCost * len(flags)
		warnings = append(warnings, flags.Labels()...)
	}

	if score < 0 {
		score = 0
	}

	level := LevelPoor
	switch {
	case score >= cfg.GoodMin:
		level = LevelGood
	case score >= cfg.FairMin:
		level = LevelFair
	}
	return HealthScore{Score: score, Level: level, Warnings: warnings}
}
