package Population

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientRecords 记录数不足，不做群体分析
	ErrInsufficientRecords = errors.New("insufficient records")
	// ErrForecastUnavailable 模型拟合失败或结果非有限
	ErrForecastUnavailable = errors.New("forecast unavailable")
)

// Forecast 平均心率的外推结果
type Forecast struct {
	Dates      []string  `json:"dates"`
	Historical []float64 `json:"historical"`
	Values     []float64 `json:"forecast"`
	Labels     []string  `json:"forecast_dates"` // "day+1" ...
	Alpha      float64   `json:"alpha"`
	Beta       float64   `json:"beta"`
	Gamma      float64   `json:"gamma"`
	SSE        float64   `json:"sse"`
}

// 平滑参数的网格搜索候选值
var smoothingGrid = []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95}

// HoltWinters 对序列做加法趋势 + 加法季节的三次指数平滑并预测 horizon 步。
// 初始化需要两个完整周期，不足时返回 ErrForecastUnavailable，数值问题同样如此
func HoltWinters(series []float64, period, horizon, minRecords int) (f *Forecast, err error) {
	if len(series) < max(minRecords, 2) {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrInsufficientRecords, max(minRecords, 2), len(series))
	}
	if horizon < 1 || period < 2 {
		return nil, fmt.Errorf("%w: horizon %d, period %d", ErrForecastUnavailable, horizon, period)
	}
	if !finite(series...) {
		return nil, fmt.Errorf("%w: non-finite input", ErrForecastUnavailable)
	}
	if len(series) < 2*period {
		return nil, fmt.Errorf("%w: need two full seasons (%d records), got %d", ErrForecastUnavailable, 2*period, len(series))
	}

	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("%w: %v", ErrForecastUnavailable, r)
		}
	}()

	f = fitSeasonal(series, period, horizon)

	if len(f.Values) != horizon || !finite(f.Values...) || !finite(f.SSE) {
		return nil, fmt.Errorf("%w: model diverged", ErrForecastUnavailable)
	}
	f.Historical = append([]float64(nil), series...)
	f.Labels = make([]string, horizon)
	for i := range f.Labels {
		f.Labels[i] = fmt.Sprintf("day+%d", i+1)
	}
	return f, nil
}

func fitSeasonal(y []float64, m, horizon int) *Forecast {
	best := &Forecast{SSE: math.Inf(1)}
	for _, a := range smoothingGrid {
		for _, b := range smoothingGrid {
			for _, g := range smoothingGrid {
				sse, values := runSeasonal(y, m, horizon, a, b, g)
				if sse < best.SSE {
					best.SSE, best.Values = sse, values
					best.Alpha, best.Beta, best.Gamma = a, b, g
				}
			}
		}
	}
	return best
}

// runSeasonal 第一周期均值作初始水平，前两周期均值差作初始趋势
func runSeasonal(y []float64, m, horizon int, alpha, beta, gamma float64) (float64, []float64) {
	level := stat.Mean(y[:m], nil)
	trend := (stat.Mean(y[m:2*m], nil) - level) / float64(m)
	season := make([]float64, len(y)+m)
	for i := 0; i < m; i++ {
		season[i] = y[i] - level
	}

	sse := 0.0
	for t, v := range y {
		s := season[t]
		pred := level + trend + s
		sse += (v - pred) * (v - pred)

		prev := level
		level = alpha*(v-s) + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
		season[t+m] = gamma*(v-level) + (1-gamma)*s
	}

	values := make([]float64, horizon)
	n := len(y)
	for h := 1; h <= horizon; h++ {
		values[h-1] = level + float64(h)*trend + season[n+(h-1)%m]
	}
	return sse, values
}
