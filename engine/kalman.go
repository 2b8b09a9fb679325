package engine

import (
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// LocationFusionFilter fuses raw position fixes with motion-predicted
// displacement. The model is a constant-velocity Kalman filter over a local
// east/north plane anchored at the first accepted fix: state [x y vx vy],
// continuous white-noise acceleration process model, measurement updates
// weighted by each fix's reported horizontal accuracy.
//
// While fixes are absent (or the carrier is stationary) the filter runs
// predict-only ("suppression"); past the suppression bound the uncertainty
// is inflated and the quality flag degrades. A covariance watchdog
// reinitializes a diverged filter rather than letting it run away.
type LocationFusionFilter struct {
	p Params

	proj        *enuProjector
	initialized bool

	xk  []float64   // [x y vx vy]
	Pxk [][]float64 // 4x4 covariance

	lastTime     time.Time
	lastFixTime  time.Time
	suppressed   bool
	suppressedAt time.Time
	degraded     bool
	gateRejects  int
	lastQuality  FixQuality
}

func NewLocationFusionFilter(p Params) *LocationFusionFilter {
	return &LocationFusionFilter{p: p, lastQuality: FixNone}
}

func (f *LocationFusionFilter) resetState(x, y float64) {
	f.xk = []float64{x, y, 0, 0}
	f.Pxk = zeroMat(4, 4)
	f.Pxk[0][0] = pow2(f.p.SigmaPos0)
	f.Pxk[1][1] = pow2(f.p.SigmaPos0)
	f.Pxk[2][2] = pow2(f.p.SigmaVel0)
	f.Pxk[3][3] = pow2(f.p.SigmaVel0)
	f.gateRejects = 0
	f.degraded = false
}

// predict advances state and covariance by dt seconds.
func (f *LocationFusionFilter) predict(dt float64) {
	if dt <= 0 {
		return
	}
	phi := identity(4)
	phi[0][2] = dt
	phi[1][3] = dt

	q := pow2(f.p.SigmaAccel)
	Q := zeroMat(4, 4)
	Q[0][0] = math.Pow(dt, 3) / 3.0 * q
	Q[0][2] = math.Pow(dt, 2) / 2.0 * q
	Q[2][0] = Q[0][2]
	Q[2][2] = dt * q
	Q[1][1] = Q[0][0]
	Q[1][3] = Q[0][2]
	Q[3][1] = Q[1][3]
	Q[3][3] = Q[2][2]

	f.xk = matVec(phi, f.xk)
	f.Pxk = matAdd(matMul(phi, matMul(f.Pxk, transpose(phi))), Q)
}

// update applies one position measurement (metres, 1-sigma accuracy).
// Returns false when the innovation gate rejects the fix.
func (f *LocationFusionFilter) update(zx, zy, accuracy float64) bool {
	acc := math.Max(accuracy, f.p.MinFixAccuracyM)
	r := pow2(acc)

	// Innovation and its covariance; H selects [x y].
	rk := []float64{zx - f.xk[0], zy - f.xk[1]}
	S := [][]float64{
		{f.Pxk[0][0] + r, f.Pxk[0][1]},
		{f.Pxk[1][0], f.Pxk[1][1] + r},
	}
	invS := pinv(S)

	maha := 0.0
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			maha += rk[i] * invS[i][j] * rk[j]
		}
	}
	maha = math.Sqrt(math.Max(maha, 0))
	if maha > f.p.GateSigma {
		f.gateRejects++
		// A run of rejections means the filter, not the fixes, is wrong.
		if f.gateRejects > 5 {
			log.Printf("location filter: %d consecutive gate rejections, reinitializing at fix", f.gateRejects)
			f.resetState(zx, zy)
		}
		return false
	}
	f.gateRejects = 0

	// K = P H^T S^-1 with H = [I2 0].
	PHt := [][]float64{
		{f.Pxk[0][0], f.Pxk[0][1]},
		{f.Pxk[1][0], f.Pxk[1][1]},
		{f.Pxk[2][0], f.Pxk[2][1]},
		{f.Pxk[3][0], f.Pxk[3][1]},
	}
	K := matMul(PHt, invS) // 4x2

	incr := matVec(K, rk)
	for i := 0; i < 4; i++ {
		f.xk[i] += incr[i]
	}
	f.Pxk = matSub(f.Pxk, matMul(K, transpose(PHt)))
	f.Pxk = symmetrize(f.Pxk)

	f.clampVelocity()

	if !allFinite(f.xk) || !allFiniteMat(f.Pxk) {
		log.Printf("location filter: non-finite state, reinitializing at fix")
		f.resetState(zx, zy)
	}
	return true
}

func (f *LocationFusionFilter) clampVelocity() {
	speed := math.Hypot(f.xk[2], f.xk[3])
	if speed > f.p.MaxSpeedMps {
		scale := f.p.MaxSpeedMps / speed
		f.xk[2] *= scale
		f.xk[3] *= scale
	}
}

// decayVelocity bleeds speed toward zero during suppression; nobody keeps
// coasting without fixes confirming it.
func (f *LocationFusionFilter) decayVelocity(dt float64) {
	speed := math.Hypot(f.xk[2], f.xk[3])
	if speed < 0.01 || f.p.Deceleration < 0.01 {
		return
	}
	scale := math.Max(speed-f.p.Deceleration*dt, 0) / speed
	f.xk[2] *= scale
	f.xk[3] *= scale
}

// watchdog runs after measurement updates only. Predict-only growth during
// suppression is honest uncertainty, not divergence.
func (f *LocationFusionFilter) watchdog() {
	limit := pow2(f.p.WatchdogSigmaM)
	if f.Pxk[0][0] > limit || f.Pxk[1][1] > limit {
		log.Printf("location filter: covariance watchdog tripped (sigma > %.0fm), reinitializing", f.p.WatchdogSigmaM)
		f.resetState(f.xk[0], f.xk[1])
		f.initialized = false
	}
}

// ProcessFix applies one raw fix. When stationary is set, the measurement
// is suppressed and the fix only advances the clock (predict-only).
func (f *LocationFusionFilter) ProcessFix(fix PositionFix, stationary bool) (FusedPosition, bool) {
	if !f.initialized {
		f.proj = newENUProjector(fix.Latitude, fix.Longitude)
		f.resetState(0, 0)
		f.initialized = true
		f.lastTime = fix.Timestamp
		f.lastFixTime = fix.Timestamp
		f.suppressed = false
		f.lastQuality = FixGood
		return f.output(fix.Timestamp), true
	}

	dt := fix.Timestamp.Sub(f.lastTime).Seconds()
	if dt < 0 {
		// Reorder buffer should prevent this; drop rather than rewind.
		return f.output(f.lastTime), false
	}
	f.predict(dt)
	f.lastTime = fix.Timestamp

	if stationary {
		f.markSuppressed(fix.Timestamp)
		f.decayVelocity(dt)
		return f.output(fix.Timestamp), true
	}

	zx, zy := f.proj.Forward(fix.Latitude, fix.Longitude)
	accepted := f.update(zx, zy, fix.HorizontalAccuracy)
	if accepted {
		f.lastFixTime = fix.Timestamp
		f.suppressed = false
		f.degraded = false
		f.lastQuality = FixGood
	}
	f.watchdog()
	return f.output(fix.Timestamp), accepted
}

// Advance runs the filter forward to t with prediction only. It is driven by
// motion samples during fix gaps so the fused track keeps moving between
// fixes.
func (f *LocationFusionFilter) Advance(t time.Time, quiet bool) (FusedPosition, bool) {
	if !f.initialized {
		return FusedPosition{Quality: FixNone, Timestamp: t}, false
	}
	dt := t.Sub(f.lastTime).Seconds()
	if dt <= 0 {
		return f.output(f.lastTime), true
	}
	f.predict(dt)
	f.lastTime = t

	if t.Sub(f.lastFixTime) > f.p.FixGap {
		f.markSuppressed(t)
	}
	if quiet {
		f.decayVelocity(dt)
	}
	return f.output(t), true
}

func (f *LocationFusionFilter) markSuppressed(t time.Time) {
	if !f.suppressed {
		f.suppressed = true
		f.suppressedAt = t
	}
	f.lastQuality = FixPredicted
	if t.Sub(f.suppressedAt) > f.p.MaxSuppression {
		if !f.degraded {
			// One-shot inflation: the estimate is now a guess and the
			// covariance should say so.
			f.Pxk[0][0] += pow2(f.p.SigmaPos0)
			f.Pxk[1][1] += pow2(f.p.SigmaPos0)
			f.degraded = true
		}
		f.lastQuality = FixDegraded
	}
}

func (f *LocationFusionFilter) output(t time.Time) FusedPosition {
	if !f.initialized || f.proj == nil {
		return FusedPosition{Quality: FixNone, Timestamp: t}
	}
	lat, lon := f.proj.Inverse(f.xk[0], f.xk[1])
	course := math.Atan2(f.xk[2], f.xk[3]) * 180 / math.Pi
	if course < 0 {
		course += 360
	}
	return FusedPosition{
		Latitude:              lat,
		Longitude:             lon,
		HorizontalUncertainty: math.Sqrt((f.Pxk[0][0] + f.Pxk[1][1]) / 2),
		SpeedMps:              math.Hypot(f.xk[2], f.xk[3]),
		CourseDeg:             course,
		Quality:               f.lastQuality,
		Timestamp:             t,
	}
}

// Initialized reports whether the filter has accepted its first fix.
func (f *LocationFusionFilter) Initialized() bool { return f.initialized }

// Matrix helpers -----------------------------------------------------------

func zeroMat(r, c int) [][]float64 {
	m := make([][]float64, r)
	for i := 0; i < r; i++ {
		m[i] = make([]float64, c)
	}
	return m
}

func identity(n int) [][]float64 {
	m := zeroMat(n, n)
	for i := 0; i < n; i++ {
		m[i][i] = 1
	}
	return m
}

func matAdd(a, b [][]float64) [][]float64 {
	out := zeroMat(len(a), len(a[0]))
	for i := range a {
		for j := range a[i] {
			out[i][j] = a[i][j] + b[i][j]
		}
	}
	return out
}

func matSub(a, b [][]float64) [][]float64 {
	out := zeroMat(len(a), len(a[0]))
	for i := range a {
		for j := range a[i] {
			out[i][j] = a[i][j] - b[i][j]
		}
	}
	return out
}

func matMul(a, b [][]float64) [][]float64 {
	r := len(a)
	c := len(b[0])
	k := len(a[0])
	out := zeroMat(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum := 0.0
			for t := 0; t < k; t++ {
				sum += a[i][t] * b[t][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func matVec(a [][]float64, v []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		sum := 0.0
		for j := range v {
			sum += a[i][j] * v[j]
		}
		out[i] = sum
	}
	return out
}

func transpose(a [][]float64) [][]float64 {
	out := zeroMat(len(a[0]), len(a))
	for i := range a {
		for j := range a[i] {
			out[j][i] = a[i][j]
		}
	}
	return out
}

func symmetrize(a [][]float64) [][]float64 {
	out := zeroMat(len(a), len(a[0]))
	for i := range a {
		for j := range a[i] {
			out[i][j] = 0.5 * (a[i][j] + a[j][i])
		}
	}
	return out
}

// pinv computes the Moore-Penrose pseudo-inverse via SVD. It is used on the
// innovation covariance, where a plain inverse can blow up on a
// near-singular matrix.
func pinv(a [][]float64) [][]float64 {
	r := len(a)
	if r == 0 {
		return [][]float64{}
	}
	c := len(a[0])

	data := make([]float64, 0, r*c)
	for _, row := range a {
		data = append(data, row...)
	}
	A := mat.NewDense(r, c, data)

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDThin); !ok {
		return zeroMat(c, r)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	maxS := 0.0
	if len(s) > 0 {
		maxS = s[0]
	}
	tol := 1e-15 * float64(maxIntOf(r, c)) * maxS

	sigInv := mat.NewDense(len(s), len(s), nil)
	for i, val := range s {
		if val > tol {
			sigInv.Set(i, i, 1.0/val)
		}
	}

	var temp, res mat.Dense
	temp.Mul(&v, sigInv)
	res.Mul(&temp, u.T())

	rows, cols := res.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		copy(out[i], res.RawRowView(i))
	}
	return out
}

func maxIntOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}
