// Package crf is the inference engine: it builds the per-example lattice
// of node and edge potentials, runs forward-backward to get the partition
// function and marginals, and runs Viterbi to get the best label
// sequence. It is grounded on TriCRF3.h's M/R matrix naming (M = edge
// transition potential, R = node observation potential) and on
// hmmlib.HMM's row-rescaling forward/backward recurrences, generalized
// from fixed Gaussian/Poisson emissions to a sparse log-linear score.
package crf

import (
	"math"

	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/param"
)

// Lattice holds the scored recurrence matrices for one sequence against
// one parameter store: R is the per-position node potential, Trans is the
// (state-independent-of-position) edge potential, and Alpha/Beta/Scale
// are filled in by Run. S is the number of states scored (store.NumStates()).
type Lattice struct {
	T int
	S int

	R     [][]float64 // T x S, node potential (not logged)
	Trans [][]float64 // S x S, edge potential (not logged), Trans[y1][y2]

	// RLog/TransLog are the plain weight sums (log of R/Trans), used by
	// Viterbi to avoid repeated Log calls in the hot loop.
	RLog     [][]float64
	TransLog [][]float64

	// boundaryTrans/boundaryTransLog hold the start->y0 transition
	// potential, looked up once at Build time since BoundaryState never
	// appears as a normal row of Trans.
	boundaryTrans    []float64
	boundaryTransLog []float64

	Alpha [][]float64
	Beta  [][]float64
	Scale []float64

	LogZ float64
}

// NodeScore returns the raw (unexponentiated) dot product of the event's
// features against state y's observation weights in store. Exported so
// the gradient assembler can score the gold path directly.
func NodeScore(store *param.Store, ev example.Event, y int) float64 {
	return nodeScore(store, ev, y)
}

// nodeScore returns the raw (unexponentiated) dot product of the event's
// features against state y's observation weights in store.
func nodeScore(store *param.Store, ev example.Event, y int) float64 {
	sum := 0.0
	for _, op := range store.ObsIndexOf(y) {
		for _, fp := range ev.Feats {
			if fp.FID == op.FID {
				sum += store.Weight[op.WIdx] * fp.Val
				break
			}
		}
	}
	return sum
}

// Build scores seq against store: S = store.NumStates(), R[t][y] is
// exp(node score), Trans[y1][y2] is exp(transition weight). The boundary
// transition BoundaryState->y into position 0 is kept in the separate
// boundaryTrans/boundaryTransLog vectors, which Run and Viterbi read
// directly rather than materializing a (S+1)-sized matrix.
func Build(store *param.Store, seq example.Sequence) *Lattice {
	t := len(seq)
	s := store.NumStates()

	l := &Lattice{T: t, S: s}
	l.R = make([][]float64, t)
	l.RLog = make([][]float64, t)
	for i, ev := range seq {
		l.R[i] = make([]float64, s)
		l.RLog[i] = make([]float64, s)
		for y := 0; y < s; y++ {
			ns := nodeScore(store, ev, y)
			l.RLog[i][y] = ns
			l.R[i][y] = math.Exp(ns)
		}
	}

	l.Trans = make([][]float64, s)
	l.TransLog = make([][]float64, s)
	for y1 := 0; y1 < s; y1++ {
		l.Trans[y1] = make([]float64, s)
		l.TransLog[y1] = make([]float64, s)
		for y2 := 0; y2 < s; y2++ {
			w := store.Weight[store.TransWeightIndex(y1, y2)]
			l.TransLog[y1][y2] = w
			l.Trans[y1][y2] = math.Exp(w)
		}
	}
	l.boundaryTrans = make([]float64, s)
	l.boundaryTransLog = make([]float64, s)
	for y := 0; y < s; y++ {
		w := store.Weight[store.TransWeightIndex(param.BoundaryState, y)]
		l.boundaryTransLog[y] = w
		l.boundaryTrans[y] = math.Exp(w)
	}

	return l
}

// Run executes the scaled forward-backward recursion (Rabiner-style row
// rescaling, as hmmlib.HMM's ForwardParticle/BackwardParticle does),
// filling Alpha, Beta, Scale, and LogZ.
func (l *Lattice) Run() {
	t, s := l.T, l.S
	l.Alpha = make([][]float64, t)
	l.Beta = make([][]float64, t)
	l.Scale = make([]float64, t)

	l.Alpha[0] = make([]float64, s)
	sum := 0.0
	for y := 0; y < s; y++ {
		l.Alpha[0][y] = l.boundaryTrans[y] * l.R[0][y]
		sum += l.Alpha[0][y]
	}
	l.Scale[0] = 1.0 / sum
	for y := 0; y < s; y++ {
		l.Alpha[0][y] *= l.Scale[0]
	}

	for i := 1; i < t; i++ {
		l.Alpha[i] = make([]float64, s)
		sum = 0.0
		for y2 := 0; y2 < s; y2++ {
			acc := 0.0
			for y1 := 0; y1 < s; y1++ {
				acc += l.Alpha[i-1][y1] * l.Trans[y1][y2]
			}
			l.Alpha[i][y2] = acc * l.R[i][y2]
			sum += l.Alpha[i][y2]
		}
		l.Scale[i] = 1.0 / sum
		for y2 := 0; y2 < s; y2++ {
			l.Alpha[i][y2] *= l.Scale[i]
		}
	}

	l.Beta[t-1] = make([]float64, s)
	for y := 0; y < s; y++ {
		l.Beta[t-1][y] = l.Scale[t-1]
	}
	for i := t - 2; i >= 0; i-- {
		l.Beta[i] = make([]float64, s)
		for y1 := 0; y1 < s; y1++ {
			acc := 0.0
			for y2 := 0; y2 < s; y2++ {
				acc += l.Trans[y1][y2] * l.R[i+1][y2] * l.Beta[i+1][y2]
			}
			l.Beta[i][y1] = acc * l.Scale[i]
		}
	}

	logZ := 0.0
	for i := 0; i < t; i++ {
		logZ -= math.Log(l.Scale[i])
	}
	l.LogZ = logZ
}

// NodeMarginal returns P(y_i = y | x), the gamma value at position i.
func (l *Lattice) NodeMarginal(i, y int) float64 {
	return l.Alpha[i][y] * l.Beta[i][y] / l.Scale[i]
}

// EdgeMarginal returns P(y_{i-1} = y1, y_i = y2 | x) for 1 <= i < T, the
// xi value for the transition arriving at position i.
func (l *Lattice) EdgeMarginal(i, y1, y2 int) float64 {
	if i <= 0 || i >= l.T {
		return 0
	}
	return l.Alpha[i-1][y1] * l.Trans[y1][y2] * l.R[i][y2] * l.Beta[i][y2]
}

// BoundaryEdgeMarginal returns P(y_0 = y | x) attributed to the
// start->y0 transition, used by the gradient assembler to accumulate
// expected counts for the boundary transition weight slots.
func (l *Lattice) BoundaryEdgeMarginal(y int) float64 {
	return l.NodeMarginal(0, y)
}
