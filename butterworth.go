package ecg

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// FilterKind 滤波器类型
type FilterKind int

const (
	Lowpass FilterKind = iota
	Highpass
	Bandpass
)

func (k FilterKind) String() string {
	switch k {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	case Bandpass:
		return "bandpass"
	}
	return fmt.Sprintf("FilterKind(%d)", int(k))
}

// TransferFunction 数字滤波器的传递函数系数 H(z) = B(z)/A(z)，A[0] 恒为 1
type TransferFunction struct {
	B []float64
	A []float64
}

// IIRFilter 直接 II 型转置结构的 IIR 滤波器，可任意阶数，逐点处理
type IIRFilter struct {
	b, a []float64
	// 状态 (延迟线)
	z []float64
}

// NewButterworth 设计 N 阶巴特沃斯滤波器 (支持奇数阶)
// sampleRate: 采样率 (Hz)
// cutoffs: 截止频率 (Hz)，带通需要两个 (低, 高)
func NewButterworth(order int, kind FilterKind, sampleRate float64, cutoffs ...float64) (*TransferFunction, error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: butterworth order must be >= 1, got %d", ErrInvalidConfig, order)
	}
	want := 1
	if kind == Bandpass {
		want = 2
	}
	if len(cutoffs) != want {
		return nil, fmt.Errorf("%w: %s filter needs %d cutoff(s), got %d", ErrInvalidConfig, kind, want, len(cutoffs))
	}

	// 归一化到 Nyquist 频率
	nyquist := sampleRate / 2
	wn := make([]float64, want)
	for i, c := range cutoffs {
		w := c / nyquist
		if !(w > 0 && w < 1) {
			return nil, fmt.Errorf("%w: cutoff %.3f Hz outside (0, %.3f) Hz", ErrMalformedInput, c, nyquist)
		}
		wn[i] = w
	}
	if kind == Bandpass && wn[0] >= wn[1] {
		return nil, fmt.Errorf("%w: band %.3f-%.3f Hz is inverted", ErrInvalidConfig, cutoffs[0], cutoffs[1])
	}

	// 1. 模拟原型极点 (单位截止频率，无零点)
	poles := make([]complex128, order)
	for k := 0; k < order; k++ {
		m := float64(2*k - order + 1)
		poles[k] = -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
	}
	var zeros []complex128
	gain := 1.0

	// 2. 预畸变截止频率 (fs=2 的归一化双线性变换)
	const fs = 2.0
	warped := make([]float64, want)
	for i, w := range wn {
		warped[i] = 2 * fs * math.Tan(math.Pi*w/fs)
	}

	// 3. 频率变换
	switch kind {
	case Lowpass:
		zeros, poles, gain = toLowpass(zeros, poles, gain, warped[0])
	case Highpass:
		zeros, poles, gain = toHighpass(zeros, poles, gain, warped[0])
	case Bandpass:
		wo := math.Sqrt(warped[0] * warped[1])
		zeros, poles, gain = toBandpass(zeros, poles, gain, wo, warped[1]-warped[0])
	default:
		return nil, fmt.Errorf("%w: unknown filter kind %d", ErrInvalidConfig, int(kind))
	}

	// 4. 双线性变换到 z 域
	zeros, poles, gain = bilinear(zeros, poles, gain, fs)

	return &TransferFunction{
		B: expand(zeros, gain),
		A: expand(poles, 1),
	}, nil
}

func toLowpass(z, p []complex128, k, wo float64) ([]complex128, []complex128, float64) {
	degree := len(p) - len(z)
	zl := scaleRoots(z, complex(wo, 0))
	pl := scaleRoots(p, complex(wo, 0))
	return zl, pl, k * math.Pow(wo, float64(degree))
}

func toHighpass(z, p []complex128, k, wo float64) ([]complex128, []complex128, float64) {
	degree := len(p) - len(z)
	w := complex(wo, 0)
	zh := make([]complex128, 0, len(p))
	ph := make([]complex128, len(p))
	for _, r := range z {
		zh = append(zh, w/r)
	}
	for i, r := range p {
		ph[i] = w / r
	}
	// 原点处补零点
	for i := 0; i < degree; i++ {
		zh = append(zh, 0)
	}
	return zh, ph, k * real(prodNeg(z)/prodNeg(p))
}

func toBandpass(z, p []complex128, k, wo, bw float64) ([]complex128, []complex128, float64) {
	degree := len(p) - len(z)
	half := complex(bw/2, 0)
	wo2 := complex(wo*wo, 0)
	split := func(roots []complex128) []complex128 {
		out := make([]complex128, 0, 2*len(roots))
		lo := make([]complex128, 0, len(roots))
		for _, r := range roots {
			r *= half
			s := cmplx.Sqrt(r*r - wo2)
			out = append(out, r+s)
			lo = append(lo, r-s)
		}
		return append(out, lo...)
	}
	zb := split(z)
	pb := split(p)
	for i := 0; i < degree; i++ {
		zb = append(zb, 0)
	}
	return zb, pb, k * math.Pow(bw, float64(degree))
}

func bilinear(z, p []complex128, k, fs float64) ([]complex128, []complex128, float64) {
	degree := len(p) - len(z)
	fs2 := complex(2*fs, 0)
	zz := make([]complex128, 0, len(p))
	pz := make([]complex128, len(p))
	num, den := complex(1, 0), complex(1, 0)
	for _, r := range z {
		zz = append(zz, (fs2+r)/(fs2-r))
		num *= fs2 - r
	}
	for i, r := range p {
		pz[i] = (fs2 + r) / (fs2 - r)
		den *= fs2 - r
	}
	// 无穷远处的零点映射到 Nyquist (z = -1)
	for i := 0; i < degree; i++ {
		zz = append(zz, -1)
	}
	return zz, pz, k * real(num/den)
}

func scaleRoots(roots []complex128, s complex128) []complex128 {
	out := make([]complex128, len(roots))
	for i, r := range roots {
		out[i] = r * s
	}
	return out
}

func prodNeg(roots []complex128) complex128 {
	p := complex(1, 0)
	for _, r := range roots {
		p *= -r
	}
	return p
}

// expand 由根展开多项式系数 (降幂)，共轭根成对出现，虚部舍去
func expand(roots []complex128, gain float64) []float64 {
	c := []complex128{1}
	for _, r := range roots {
		c = append(c, 0)
		for i := len(c) - 1; i > 0; i-- {
			c[i] -= r * c[i-1]
		}
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v) * gain
	}
	return out
}

// Order 返回滤波器阶数
func (tf *TransferFunction) Order() int {
	return max(len(tf.A), len(tf.B)) - 1
}

// NewFilter 创建一个有状态的滤波器实例，zi 为初始状态 (可为 nil)
func (tf *TransferFunction) NewFilter(zi []float64) *IIRFilter {
	n := tf.Order()
	b := make([]float64, n+1)
	a := make([]float64, n+1)
	copy(b, tf.B)
	copy(a, tf.A)
	z := make([]float64, n)
	copy(z, zi)
	return &IIRFilter{b: b, a: a, z: z}
}

// Process 处理单个采样点
func (f *IIRFilter) Process(in float64) float64 {
	n := len(f.z)
	if n == 0 {
		return f.b[0] * in
	}
	out := f.b[0]*in + f.z[0]
	for i := 0; i < n-1; i++ {
		f.z[i] = f.b[i+1]*in + f.z[i+1] - f.a[i+1]*out
	}
	f.z[n-1] = f.b[n]*in - f.a[n]*out
	return out
}

// SteadyState 计算阶跃响应稳态下的初始状态 zi
// 解 (I - A^T) zi = B[1:] - A[1:]*B[0]，A 为分母的伴随矩阵
func (tf *TransferFunction) SteadyState() ([]float64, error) {
	n := tf.Order()
	if n == 0 {
		return nil, nil
	}
	b := make([]float64, n+1)
	a := make([]float64, n+1)
	copy(b, tf.B)
	copy(a, tf.A)

	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	for j := 0; j < n; j++ {
		m.Set(j, 0, m.At(j, 0)+a[j+1])
	}
	for i := 1; i < n; i++ {
		m.Set(i-1, i, m.At(i-1, i)-1)
	}

	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		// 病态矩阵只是警告，结果仍可用
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("filter steady state: %w", err)
		}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = zi.AtVec(i)
	}
	return out, nil
}

// PadLen 零相位滤波两端的奇对称延拓长度
func (tf *TransferFunction) PadLen() int {
	return 3 * max(len(tf.A), len(tf.B))
}

// FiltFilt 零相位滤波：正向滤波一次，时间反转后再滤波一次。
// 两端做奇对称延拓，并以稳态初始条件启动，抑制边缘瞬态
func (tf *TransferFunction) FiltFilt(x []float64) ([]float64, error) {
	if len(x) == 0 {
		return []float64{}, nil
	}
	edge := tf.PadLen()
	if len(x) <= edge {
		return nil, fmt.Errorf("%w: zero-phase filtering needs more than %d samples, got %d", ErrMalformedInput, edge, len(x))
	}
	zi, err := tf.SteadyState()
	if err != nil {
		return nil, err
	}

	y := oddExtend(x, edge)

	fwd := tf.NewFilter(scaled(zi, y[0]))
	for i, v := range y {
		y[i] = fwd.Process(v)
	}

	reverse(y)
	bwd := tf.NewFilter(scaled(zi, y[0]))
	for i, v := range y {
		y[i] = bwd.Process(v)
	}
	reverse(y)

	out := make([]float64, len(x))
	copy(out, y[edge:edge+len(x)])
	return out, nil
}

func oddExtend(x []float64, n int) []float64 {
	last := len(x) - 1
	ext := make([]float64, 0, len(x)+2*n)
	for i := 0; i < n; i++ {
		ext = append(ext, 2*x[0]-x[n-i])
	}
	ext = append(ext, x...)
	for i := 0; i < n; i++ {
		ext = append(ext, 2*x[last]-x[last-1-i])
	}
	return ext
}

func scaled(v []float64, s float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * s
	}
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
