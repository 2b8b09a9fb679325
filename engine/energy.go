package engine

import (
	"math"
	"time"
)

// EnergyExpenditureEstimator converts biometrics, fused speed, grade and
// terrain into a continuously updated calorie figure using the Pandolf
// load-carriage equation with the Santee correction on descents. Cumulative
// output never decreases; invalid masses are rejected before a session
// starts, never clamped here.
type EnergyExpenditureEstimator struct {
	p   Params
	ctx SessionContext

	env     Environment
	haveEnv bool

	lastTime time.Time
	started  bool

	rate float64 // kcal/min
	cum  float64
}

func NewEnergyExpenditureEstimator(ctx SessionContext, p Params) (*EnergyExpenditureEstimator, error) {
	if ctx.BodyMassKg <= 0 || ctx.LoadMassKg < 0 {
		return nil, ErrInvalidMass
	}
	return &EnergyExpenditureEstimator{
		p:   p,
		ctx: ctx,
		env: Environment{TemperatureC: math.NaN()},
	}, nil
}

// SetEnvironment records optional environmental conditions for the
// correction factors.
func (e *EnergyExpenditureEstimator) SetEnvironment(env Environment) {
	e.env = env
	e.haveEnv = true
}

// standingRate is the Pandolf load-bearing standing cost in watts, the floor
// below which the moving estimate never drops.
func (e *EnergyExpenditureEstimator) standingRate() float64 {
	w := e.ctx.BodyMassKg
	l := e.ctx.LoadMassKg
	return e.p.PandolfK1*w + e.p.PandolfK2*(w+l)*pow2(l/w)
}

// metabolicRate evaluates the regression in watts. Grade is in percent,
// speed in m/s, eta is the terrain multiplier.
func (e *EnergyExpenditureEstimator) metabolicRate(speed, gradePct, eta float64) float64 {
	w := e.ctx.BodyMassKg
	l := e.ctx.LoadMassKg
	standing := e.standingRate()

	mr := standing + eta*(w+l)*(e.p.PandolfK3*pow2(speed)+e.p.PandolfK4*speed*gradePct)

	if gradePct < 0 {
		// Santee downhill correction: descending is cheaper than level
		// walking down to roughly -10%, then braking cost takes over.
		cf := eta * ((gradePct*(w+l)*speed)/3.5 -
			((w+l)*pow2(gradePct+6))/w +
			(25 - pow2(speed)))
		mr -= cf
	}

	if mr < standing {
		mr = standing
	}
	return mr
}

// correctionFactor applies the bounded environmental multipliers.
func (e *EnergyExpenditureEstimator) correctionFactor(altitudeM float64, haveAlt bool) float64 {
	f := 1.0
	if e.haveEnv && !math.IsNaN(e.env.TemperatureC) {
		var excess float64
		if e.env.TemperatureC > e.p.TempComfortHighC {
			excess = e.env.TemperatureC - e.p.TempComfortHighC
		} else if e.env.TemperatureC < e.p.TempComfortLowC {
			excess = e.p.TempComfortLowC - e.env.TemperatureC
		}
		pct := math.Min(excess*e.p.TempPctPerC, e.p.TempMaxPct)
		f *= 1 + pct/100
	}
	if haveAlt && altitudeM > e.p.AltThresholdM {
		pct := (altitudeM - e.p.AltThresholdM) / 250 * e.p.AltPctPer250M
		f *= 1 + pct/100
	}
	return f
}

// Advance recomputes the instantaneous rate for the conditions at time t and
// integrates it over the elapsed interval.
func (e *EnergyExpenditureEstimator) Advance(t time.Time, speed, gradePct, eta, altitudeM float64, haveAlt bool) {
	if speed < 0 {
		speed = 0
	}
	watts := e.metabolicRate(speed, gradePct, eta) * e.correctionFactor(altitudeM, haveAlt)
	rate := watts * WattsToKcalPerMin
	if rate < 0 {
		rate = 0
	}

	if !e.started {
		e.started = true
		e.lastTime = t
		e.rate = rate
		return
	}
	dt := t.Sub(e.lastTime).Minutes()
	if dt > 0 {
		e.cum += e.rate * dt
		e.lastTime = t
	}
	e.rate = rate
}

// Rate returns the instantaneous burn rate in kcal/min.
func (e *EnergyExpenditureEstimator) Rate() float64 { return e.rate }

// State returns the energy estimate with its symmetric confidence interval.
func (e *EnergyExpenditureEstimator) State() EnergyState {
	ci := e.cum * e.p.EnergyCIPct / 100
	return EnergyState{
		RateKcalPerMin: e.rate,
		CumulativeKcal: e.cum,
		CILowKcal:      e.cum - ci,
		CIHighKcal:     e.cum + ci,
	}
}
