// Package lbfgs implements limited-memory BFGS with an optional
// orthant-wise (OWL-QN) projection step for L1 regularization. It has no
// built-in optimizer elsewhere in this module; it is written from scratch
// against original_source/src/LBFGS.h's reverse-communication contract
// (the caller supplies f and g at the optimizer's current x, and the
// optimizer reports Continue/Converged/Failed), using gonum/floats for
// the vector arithmetic the rest of this module already depends on.
package lbfgs

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Status is the reverse-communication result of a Step call, mirroring
// LBFGS.h's optimize() return codes (1 continue, 0 converged, -1 failed)
// as a named type instead of a magic integer.
type Status int

const (
	Continue Status = iota
	Converged
	Failed
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Converged:
		return "converged"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// defaultHistory matches LBFGS.h's fixed msize = 100.
const defaultHistory = 100

// defaultMaxLineSearch matches the original's per-step line search budget.
const defaultMaxLineSearch = 20

// Optimizer drives one L-BFGS (optionally OWL-QN) minimization. It owns
// the parameter vector it is given by reference and mutates it in place
// between Step calls, matching LBFGS.h's `double *x` in/out convention.
type Optimizer struct {
	n       int
	history int

	sHist   [][]float64
	yHist   [][]float64
	rhoHist []float64

	x0, g0, pg0 []float64
	dir         []float64

	step      int // trial count within the active line search
	stepSize  float64
	f0        float64
	dirDotPG0 float64

	lsActive bool
	iter     int

	// Orthant is true to run OWL-QN with L1 penalty C; when false this is
	// plain L-BFGS (used for L2-regularized or unregularized objectives,
	// where the caller folds the L2 term into f and g directly).
	Orthant bool
	C       float64

	GradTol float64
	FTol    float64

	prevF float64
}

// New returns an optimizer for an n-dimensional problem with the default
// history size. Set Orthant and C before the first Step call to enable
// L1 regularization via orthant-wise projection.
func New(n int) *Optimizer {
	return &Optimizer{
		n:       n,
		history: defaultHistory,
		GradTol: 1e-5,
		FTol:    1e-9,
		prevF:   math.Inf(1),
	}
}

// pseudoGradient computes the OWL-QN pseudo-gradient at x, which replaces
// the true gradient's role in both the two-loop recursion and the
// convergence test whenever L1 regularization is active.
func (o *Optimizer) pseudoGradient(x, g []float64) []float64 {
	if !o.Orthant {
		return g
	}
	pg := make([]float64, len(g))
	for i := range g {
		switch {
		case x[i] > 0:
			pg[i] = g[i] + o.C
		case x[i] < 0:
			pg[i] = g[i] - o.C
		default:
			if g[i] < -o.C {
				pg[i] = g[i] + o.C
			} else if g[i] > o.C {
				pg[i] = g[i] - o.C
			} else {
				pg[i] = 0
			}
		}
	}
	return pg
}

// twoLoop computes the L-BFGS search direction -H*pg via the standard
// two-loop recursion over the stored (s, y, rho) history.
func (o *Optimizer) twoLoop(pg []float64) []float64 {
	q := append([]float64(nil), pg...)
	m := len(o.sHist)
	alpha := make([]float64, m)

	for i := m - 1; i >= 0; i-- {
		alpha[i] = o.rhoHist[i] * floats.Dot(o.sHist[i], q)
		floats.AddScaled(q, -alpha[i], o.yHist[i])
	}

	gamma := 1.0
	if m > 0 {
		last := m - 1
		yy := floats.Dot(o.yHist[last], o.yHist[last])
		if yy > 0 {
			gamma = floats.Dot(o.sHist[last], o.yHist[last]) / yy
		}
	}
	r := make([]float64, len(q))
	copy(r, q)
	floats.Scale(gamma, r)

	for i := 0; i < m; i++ {
		beta := o.rhoHist[i] * floats.Dot(o.yHist[i], r)
		floats.AddScaled(r, alpha[i]-beta, o.sHist[i])
	}
	floats.Scale(-1, r)
	return r
}

// projectDirection zeroes any component of dir that points the wrong way
// relative to the negative pseudo-gradient's orthant, per Andrew & Gao's
// OWL-QN constraint that a step may never move a coordinate away from the
// steepest-descent orthant it started in.
func projectDirection(dir, negPG []float64) {
	for i := range dir {
		if dir[i]*negPG[i] <= 0 {
			dir[i] = 0
		}
	}
}

// projectPoint clips x back onto the orthant of the reference point ref,
// zeroing any coordinate whose sign would otherwise flip. This is the
// tie-break decision recorded as an Open Question resolution: a
// coordinate landing exactly on zero stays at zero rather than crossing.
func projectPoint(x, ref []float64) {
	for i := range x {
		if x[i]*ref[i] < 0 {
			x[i] = 0
		}
	}
}

// startLineSearch initializes a new trial direction from x/f/g and writes
// the first trial point into x in place.
func (o *Optimizer) startLineSearch(x []float64, f float64, g []float64) {
	pg := o.pseudoGradient(x, g)
	var dir []float64
	if len(o.sHist) == 0 {
		dir = make([]float64, o.n)
		copy(dir, pg)
		floats.Scale(-1, dir)
	} else {
		dir = o.twoLoop(pg)
	}
	if o.Orthant {
		negPG := make([]float64, o.n)
		copy(negPG, pg)
		floats.Scale(-1, negPG)
		projectDirection(dir, negPG)
	}

	o.dir = dir
	o.x0 = append([]float64(nil), x...)
	o.g0 = append([]float64(nil), g...)
	o.pg0 = pg
	o.f0 = f
	o.dirDotPG0 = floats.Dot(dir, pg)
	o.stepSize = 1.0
	o.step = 0
	o.lsActive = true

	o.applyTrialStep(x)
}

func (o *Optimizer) applyTrialStep(x []float64) {
	for i := range x {
		x[i] = o.x0[i] + o.stepSize*o.dir[i]
	}
	if o.Orthant {
		projectPoint(x, o.x0)
	}
}

// Step advances the optimizer given the objective value f and gradient g
// at the current x, mutating x in place to the next point to evaluate.
// The caller loops: evaluate (f, g) at x, call Step, repeat until the
// returned Status is not Continue.
func (o *Optimizer) Step(x []float64, f float64, g []float64) Status {
	if len(x) != o.n || len(g) != o.n {
		return Failed
	}
	if o.Orthant {
		// The L1 term is part of the objective OWL-QN minimizes; the
		// caller's f covers only the smooth part.
		f += o.C * floats.Norm(x, 1)
	}

	if !o.lsActive {
		o.startLineSearch(x, f, g)
		return Continue
	}

	// Sufficient decrease (Armijo) with a mild curvature check in place
	// of a full cubic-interpolation Wolfe search, evaluated in terms of
	// the pseudo-gradient so OWL-QN's orthant constraint stays honored.
	const c1 = 1e-4
	sufficientDecrease := f <= o.f0+c1*o.stepSize*o.dirDotPG0

	if sufficientDecrease || o.step >= defaultMaxLineSearch {
		if !sufficientDecrease {
			// Ran out of trials without a strict decrease; accept the
			// last trial anyway if it did not increase the objective,
			// otherwise restore the line search's starting point (the
			// best point so far) and report failure.
			if f > o.f0 {
				copy(x, o.x0)
				return Failed
			}
		}
		priorF := o.prevF
		o.acceptStep(x, f, g)
		if o.converged(x, g, priorF, f) {
			return Converged
		}
		o.lsActive = false
		return Continue
	}

	o.step++
	o.stepSize *= 0.5
	o.applyTrialStep(x)
	return Continue
}

func (o *Optimizer) acceptStep(x []float64, f float64, g []float64) {
	s := make([]float64, o.n)
	for i := range s {
		s[i] = x[i] - o.x0[i]
	}
	pg := o.pseudoGradient(x, g)
	y := make([]float64, o.n)
	for i := range y {
		y[i] = pg[i] - o.pg0[i]
	}
	sy := floats.Dot(s, y)
	if sy > 1e-12 {
		o.sHist = append(o.sHist, s)
		o.yHist = append(o.yHist, y)
		o.rhoHist = append(o.rhoHist, 1.0/sy)
		if len(o.sHist) > o.history {
			o.sHist = o.sHist[1:]
			o.yHist = o.yHist[1:]
			o.rhoHist = o.rhoHist[1:]
		}
	}
	o.iter++
	o.prevF = f
}

func (o *Optimizer) converged(x, g []float64, priorF, f float64) bool {
	gnorm := floats.Norm(o.pseudoGradient(x, g), 2) / math.Max(1.0, floats.Norm(x, 2))
	if gnorm < o.GradTol {
		return true
	}
	if math.IsInf(priorF, 1) {
		return false
	}
	denom := math.Max(math.Max(math.Abs(priorF), math.Abs(f)), 1.0)
	return math.Abs(priorF-f)/denom < o.FTol
}

// Iterations reports how many accepted L-BFGS steps have completed.
func (o *Optimizer) Iterations() int { return o.iter }
