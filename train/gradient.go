// Package train assembles the negative log-likelihood and its gradient
// from a batch of examples against a parameter store, applies L1/L2
// regularization, runs the pseudo-likelihood warm-start, and drives the
// L-BFGS loop to convergence. It generalizes hmmlib.HMM's Fit EM loop
// (E-step accumulation followed by an M-step update, wrapped in a
// max-iterations/convergence check and a progress bar) from closed-form
// EM updates to a gradient-based optimizer.
package train

import (
	"github.com/spokenlu/tricrf/crf"
	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/param"
)

// SeqExample is one training instance for the gradient assembler: a
// gold-labeled sequence and, for topic-restricted triangular training,
// the subset of states it may compete over. States is nil for the
// unrestricted case (MaxEnt, plain CRF, TriCRFA).
type SeqExample struct {
	Seq    example.Sequence
	States []int
}

// GradientAssembler accumulates the negative log-likelihood and its
// gradient over a batch of examples into a Store's Gradient vector,
// caching the empirical (gold) counts in its own slice across calls since they
// never change as the weight vector is optimized. This mirrors
// Param.h/MaxEnt.h's separation of "the counts observed in training
// data" from "the counts expected under the current model."
type GradientAssembler struct {
	store *param.Store

	// independent selects MaxEnt's "no transitions, no forward/backward"
	// scoring: every event in a record is its own length-1 lattice
	// instead of the whole record being one forward-backward chain.
	independent bool

	empiricalCached bool
	empirical       []float64
}

// NewGradientAssembler returns an assembler for store. store must already
// be Finalize'd. kind selects MaxEnt's independent-event scoring; any
// other kind runs the full forward-backward linear-chain CRF.
func NewGradientAssembler(store *param.Store, kind crf.ModelKind) *GradientAssembler {
	return &GradientAssembler{store: store, independent: kind == crf.MaxEnt}
}

func lattice(store *param.Store, ex SeqExample) (*crf.Lattice, func(int) int) {
	if ex.States == nil {
		return crf.Build(store, ex.Seq), func(k int) int { return k }
	}
	states := ex.States
	return crf.BuildRestricted(store, ex.Seq, states), func(k int) int { return states[k] }
}

// segments splits seq into the spans that share one forward-backward
// lattice: the whole sequence for a linear-chain CRF, or one span per
// event for MaxEnt, where each event is scored independently of its
// neighbors.
func (g *GradientAssembler) segments(seq example.Sequence) []example.Sequence {
	if !g.independent {
		return []example.Sequence{seq}
	}
	segs := make([]example.Sequence, len(seq))
	for i := range seq {
		segs[i] = seq[i : i+1]
	}
	return segs
}

func (g *GradientAssembler) cacheEmpirical(examples []SeqExample) {
	g.empirical = make([]float64, g.store.Size())
	for _, ex := range examples {
		for _, seg := range g.segments(ex.Seq) {
			prev := param.BoundaryState
			for _, ev := range seg {
				y := ev.Label
				for _, fp := range ev.Feats {
					if widx, ok := g.store.WIdxOf(y, fp.FID); ok {
						g.empirical[widx] += fp.Val
					}
				}
				g.empirical[g.store.TransWeightIndex(prev, y)]++
				prev = y
			}
		}
	}
	g.empiricalCached = true
}

// Evaluate computes the total negative log-likelihood of examples under
// store's current Weight vector and accumulates dNLL/dWeight into
// store.Gradient (zeroed first). It returns the NLL.
func (g *GradientAssembler) Evaluate(examples []SeqExample) float64 {
	if !g.empiricalCached {
		g.cacheEmpirical(examples)
	}

	for i := range g.store.Gradient {
		g.store.Gradient[i] = 0
	}

	nll := 0.0
	for _, ex := range examples {
		for _, seg := range g.segments(ex.Seq) {
			lat, label := lattice(g.store, SeqExample{Seq: seg, States: ex.States})
			lat.Run()

			goldScore := 0.0
			prev := param.BoundaryState
			for _, ev := range seg {
				y := ev.Label
				goldScore += crf.NodeScore(g.store, ev, y)
				goldScore += g.store.Weight[g.store.TransWeightIndex(prev, y)]
				prev = y
			}
			nll -= goldScore - lat.LogZ

			for i, ev := range seg {
				for k := 0; k < lat.S; k++ {
					y := label(k)
					gamma := lat.NodeMarginal(i, k)
					if gamma == 0 {
						continue
					}
					for _, fp := range ev.Feats {
						if widx, ok := g.store.WIdxOf(y, fp.FID); ok {
							g.store.Gradient[widx] += gamma * fp.Val
						}
					}
				}
			}

			for k := 0; k < lat.S; k++ {
				y := label(k)
				widx := g.store.TransWeightIndex(param.BoundaryState, y)
				g.store.Gradient[widx] += lat.BoundaryEdgeMarginal(k)
			}
			for i := 1; i < lat.T; i++ {
				for k1 := 0; k1 < lat.S; k1++ {
					y1 := label(k1)
					for k2 := 0; k2 < lat.S; k2++ {
						y2 := label(k2)
						xi := lat.EdgeMarginal(i, k1, k2)
						if xi == 0 {
							continue
						}
						widx := g.store.TransWeightIndex(y1, y2)
						g.store.Gradient[widx] += xi
					}
				}
			}
		}
	}

	for i := range g.store.Gradient {
		g.store.Gradient[i] -= g.empirical[i]
	}
	return nll
}
