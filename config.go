package ecg

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfig 表示配置参数不合法
var ErrInvalidConfig = errors.New("invalid config")

// ConditionerConfig 信号预处理 (去基线漂移 + 去高频噪声)
type ConditionerConfig struct {
	Order      int     `toml:"order"`       // 巴特沃斯阶数 (3)
	HighpassHz float64 `toml:"highpass_hz"` // 高通截止频率，去除基线漂移 (0.5Hz)
	LowpassHz  float64 `toml:"lowpass_hz"`  // 低通截止频率，去除高频噪声 (40Hz)
}

// PeakConfig R 峰检测参数
type PeakConfig struct {
	Order          int     `toml:"order"`            // 带通滤波器阶数 (3)
	BandLowHz      float64 `toml:"band_low_hz"`      // QRS 能量带下限 (5Hz)
	BandHighHz     float64 `toml:"band_high_hz"`     // QRS 能量带上限 (15Hz)
	SmoothWindow   float64 `toml:"smooth_window"`    // 移动平均窗口 (秒)，0.1s
	HeightRatio    float64 `toml:"height_ratio"`     // 最小峰高 = 比例 * 全局最大值 (0.3)
	MinDistanceSec float64 `toml:"min_distance_sec"` // 相邻峰的最小间隔 (秒)，0.2s 对应 300bpm
}

// HeartRateConfig 瞬时心率的生理范围
type HeartRateConfig struct {
	MinBPM float64 `toml:"min_bpm"`
	MaxBPM float64 `toml:"max_bpm"`
}

// HRVConfig 心率变异性参数
type HRVConfig struct {
	MinRRMs float64 `toml:"min_rr_ms"` // RR 间期下限 (300ms)
	MaxRRMs float64 `toml:"max_rr_ms"` // RR 间期上限 (2000ms)
	NN50Ms  float64 `toml:"nn50_ms"`   // pNN50 的差值门限 (50ms)
}

// ArrhythmiaConfig 心律规则阈值
type ArrhythmiaConfig struct {
	TachyMeanRRMs    float64 `toml:"tachy_mean_rr_ms"`    // 平均 RR 低于此值 -> 心动过速 (600ms)
	BradyMeanRRMs    float64 `toml:"brady_mean_rr_ms"`    // 平均 RR 高于此值 -> 心动过缓 (1000ms)
	IrregularStdRRMs float64 `toml:"irregular_std_rr_ms"` // RR 标准差高于此值 -> 心律不齐 (150ms)
}

// TrendConfig 趋势分析参数
type TrendConfig struct {
	WindowSec        float64 `toml:"window_sec"`         // 趋势窗口 (30s)
	ProfileWindowSec float64 `toml:"profile_window_sec"` // 展示用心率曲线窗口 (10s)
	SlopeThreshold   float64 `toml:"slope_threshold"`    // |slope| 超过此值才算上升/下降 (0.1)
	MinBeats         int     `toml:"min_beats"`          // 窗口内至少多少个心跳才计算心率 (2)
}

// ScoreConfig 健康评分阈值
type ScoreConfig struct {
	LowHR    float64 `toml:"low_hr"`    // 心率过低 (60)
	HighHR   float64 `toml:"high_hr"`   // 心率过高 (100)
	LowSDNN  float64 `toml:"low_sdnn"`  // HRV 过低 (20ms)
	HighSDNN float64 `toml:"high_sdnn"` // HRV 异常 (200ms)
	GoodMin  int     `toml:"good_min"`  // >= 此分数为 Good
	FairMin  int     `toml:"fair_min"`  // >= 此分数为 Fair
}

// PopulationConfig 群体分析 (预测 + 异常检测)
type PopulationConfig struct {
	Horizon        int     `toml:"horizon"`         // 预测点数 (7)
	SeasonalPeriod int     `toml:"seasonal_period"` // Holt-Winters 季节周期 (7)
	MinRecords     int     `toml:"min_records"`     // 至少多少条记录才做群体分析 (3)
	Contamination  float64 `toml:"contamination"`   // 异常比例 (0.1)
	Trees          int     `toml:"trees"`           // 孤立森林的树数量 (100)
	MaxSamples     int     `toml:"max_samples"`     // 每棵树的子采样大小上限 (256)
	Seed           int64   `toml:"seed"`            // 随机种子 (42)，保证结果可复现
}

// AcquisitionConfig 串口采集参数
type AcquisitionConfig struct {
	Port        string        `toml:"port"`
	BaudRate    int           `toml:"baud_rate"`
	ReadTimeout time.Duration `toml:"read_timeout"`
	Duration    time.Duration `toml:"duration"` // 单次采集时长
}

// Config 结构体用于集中管理分析流水线的所有可调参数和阈值
// 构造 Analyzer 时复制一份，分析过程中不再修改
type Config struct {
	// 数据源未携带采样率时使用的默认值 (Hz)
	SampleRate float64 `toml:"sample_rate"`
	// 批量分析的并发数
	Workers int `toml:"workers"`

	Conditioner ConditionerConfig `toml:"conditioner"`
	Peaks       PeakConfig        `toml:"peaks"`
	HeartRate   HeartRateConfig   `toml:"heart_rate"`
	HRV         HRVConfig         `toml:"hrv"`
	Arrhythmia  ArrhythmiaConfig  `toml:"arrhythmia"`
	Trend       TrendConfig       `toml:"trend"`
	Score       ScoreConfig       `toml:"score"`
	Population  PopulationConfig  `toml:"population"`
	Acquisition AcquisitionConfig `toml:"acquisition"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.SampleRate = 510.852 // 采集设备导出文件的标称采样率
	cfg.Workers = 4

	// --- 预处理 ---
	cfg.Conditioner.Order = 3
	cfg.Conditioner.HighpassHz = 0.5
	cfg.Conditioner.LowpassHz = 40.0

	// --- R 峰检测 ---
	cfg.Peaks.Order = 3
	cfg.Peaks.BandLowHz = 5.0
	cfg.Peaks.BandHighHz = 15.0
	cfg.Peaks.SmoothWindow = 0.1
	cfg.Peaks.HeightRatio = 0.3
	cfg.Peaks.MinDistanceSec = 0.2

	// --- 心率 / HRV / 心律 ---
	cfg.HeartRate.MinBPM = 40
	cfg.HeartRate.MaxBPM = 200

	cfg.HRV.MinRRMs = 300
	cfg.HRV.MaxRRMs = 2000
	cfg.HRV.NN50Ms = 50

	cfg.Arrhythmia.TachyMeanRRMs = 600
	cfg.Arrhythmia.BradyMeanRRMs = 1000
	cfg.Arrhythmia.IrregularStdRRMs = 150

	// --- 趋势 ---
	cfg.Trend.WindowSec = 30
	cfg.Trend.ProfileWindowSec = 10
	cfg.Trend.SlopeThreshold = 0.1
	cfg.Trend.MinBeats = 2

	// --- 评分 ---
	cfg.Score.LowHR = 60
	cfg.Score.HighHR = 100
	cfg.Score.LowSDNN = 20
	cfg.Score.HighSDNN = 200
	cfg.Score.GoodMin = 80
	cfg.Score.FairMin = 60

	// --- 群体分析 ---
	cfg.Population.Horizon = 7
	cfg.Population.SeasonalPeriod = 7
	cfg.Population.MinRecords = 3
	cfg.Population.Contamination = 0.1
	cfg.Population.Trees = 100
	cfg.Population.MaxSamples = 256
	cfg.Population.Seed = 42

	// --- 串口采集 ---
	cfg.Acquisition.Port = "/dev/ttyUSB0"
	cfg.Acquisition.BaudRate = 115200
	cfg.Acquisition.ReadTimeout = 500 * time.Millisecond
	cfg.Acquisition.Duration = 60 * time.Second

	return cfg
}

// LoadConfig 在默认配置之上叠加 TOML 文件。文件不存在不算错误
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置是否自洽
func (c *Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample_rate must be positive, got %v", ErrInvalidConfig, c.SampleRate)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, c.Workers)
	case c.Conditioner.Order < 1 || c.Peaks.Order < 1:
		return fmt.Errorf("%w: filter order must be >= 1", ErrInvalidConfig)
	case c.Conditioner.HighpassHz <= 0 || c.Conditioner.LowpassHz <= c.Conditioner.HighpassHz:
		return fmt.Errorf("%w: conditioner band %v-%v Hz", ErrInvalidConfig, c.Conditioner.HighpassHz, c.Conditioner.LowpassHz)
	case c.Peaks.BandLowHz <= 0 || c.Peaks.BandHighHz <= c.Peaks.BandLowHz:
		return fmt.Errorf("%w: peak band %v-%v Hz", ErrInvalidConfig, c.Peaks.BandLowHz, c.Peaks.BandHighHz)
	case c.Peaks.HeightRatio <= 0 || c.Peaks.HeightRatio > 1:
		return fmt.Errorf("%w: height_ratio must be in (0,1], got %v", ErrInvalidConfig, c.Peaks.HeightRatio)
	case c.Peaks.SmoothWindow <= 0 || c.Peaks.MinDistanceSec <= 0:
		return fmt.Errorf("%w: smoothing window and peak distance must be positive", ErrInvalidConfig)
	case c.HeartRate.MinBPM >= c.HeartRate.MaxBPM:
		return fmt.Errorf("%w: heart rate range %v-%v", ErrInvalidConfig, c.HeartRate.MinBPM, c.HeartRate.MaxBPM)
	case c.HRV.MinRRMs >= c.HRV.MaxRRMs:
		return fmt.Errorf("%w: rr range %v-%v ms", ErrInvalidConfig, c.HRV.MinRRMs, c.HRV.MaxRRMs)
	case c.Trend.WindowSec <= 0 || c.Trend.ProfileWindowSec <= 0:
		return fmt.Errorf("%w: trend windows must be positive", ErrInvalidConfig)
	case c.Population.Contamination <= 0 || c.Population.Contamination > 0.5:
		return fmt.Errorf("%w: contamination must be in (0,0.5], got %v", ErrInvalidConfig, c.Population.Contamination)
	case c.Population.SeasonalPeriod < 2 || c.Population.Horizon < 1:
		return fmt.Errorf("%w: seasonal period >= 2 and horizon >= 1 required", ErrInvalidConfig)
	case c.Population.Trees < 1 || c.Population.MaxSamples < 1:
		return fmt.Errorf("%w: isolation forest needs trees and max_samples >= 1", ErrInvalidConfig)
	}
	return nil
}
