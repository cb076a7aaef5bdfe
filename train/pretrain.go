package train

import (
	"math"

	"github.com/spokenlu/tricrf/lbfgs"
	"github.com/spokenlu/tricrf/param"
)

// pseudoLikelihoodNLL computes the per-position pseudo-likelihood
// objective: at each position, the previous gold label is held fixed and
// only the current position's label is normalized over, so no chain-wide
// forward-backward is needed. The transition into the next position is
// not part of a position's score. This is MaxEnt.h's pretrain()
// warm-start, generalized from its single-event classifier to per-token
// positions with one neighboring transition folded in.
func pseudoLikelihoodNLL(store *param.Store, examples []SeqExample, independent bool) float64 {
	for i := range store.Gradient {
		store.Gradient[i] = 0
	}
	nll := 0.0

	for _, ex := range examples {
		states := ex.States
		n := store.NumStates()
		if states != nil {
			n = len(states)
		}
		stateAt := func(k int) int {
			if states == nil {
				return k
			}
			return states[k]
		}

		prevGold := param.BoundaryState
		for _, ev := range ex.Seq {
			scores := make([]float64, n)
			maxScore := math.Inf(-1)
			for k := 0; k < n; k++ {
				y := stateAt(k)
				scores[k] = store.Weight[store.TransWeightIndex(prevGold, y)]
				for _, fp := range ev.Feats {
					if widx, ok := store.WIdxOf(y, fp.FID); ok {
						scores[k] += store.Weight[widx] * fp.Val
					}
				}
				if scores[k] > maxScore {
					maxScore = scores[k]
				}
			}
			sum := 0.0
			probs := make([]float64, n)
			for k := 0; k < n; k++ {
				probs[k] = math.Exp(scores[k] - maxScore)
				sum += probs[k]
			}
			for k := range probs {
				probs[k] /= sum
			}

			goldK := -1
			for k := 0; k < n; k++ {
				if stateAt(k) == ev.Label {
					goldK = k
					break
				}
			}
			if goldK >= 0 {
				nll -= math.Log(probs[goldK] + 1e-300)
			}

			for k := 0; k < n; k++ {
				y := stateAt(k)
				delta := probs[k]
				if k == goldK {
					delta -= 1
				}
				if delta == 0 {
					continue
				}
				widx := store.TransWeightIndex(prevGold, y)
				store.Gradient[widx] += delta
				for _, fp := range ev.Feats {
					if w, ok := store.WIdxOf(y, fp.FID); ok {
						store.Gradient[w] += delta * fp.Val
					}
				}
			}

			if !independent {
				prevGold = ev.Label
			}
		}
	}
	return nll
}

// PseudoLikelihoodWarmStart runs a small L-BFGS loop against the
// pseudo-likelihood objective to produce a fast, reasonable starting
// point for the full forward-backward training that follows, matching
// the initialize=PL / initialize_iter configuration keys. independent
// matches MaxEnt's "no transitions" scoring: every event conditions on
// the boundary state rather than the previous event's gold label.
func PseudoLikelihoodWarmStart(store *param.Store, examples []SeqExample, maxIter int, reg Regularizer, independent bool) {
	opt := lbfgs.New(store.Size())
	if reg.Kind == RegL1 {
		opt.Orthant = true
		opt.C = L1C(reg.Sigma)
	}

	status := lbfgs.Continue
	for iter := 0; iter < maxIter && status == lbfgs.Continue; iter++ {
		nll := pseudoLikelihoodNLL(store, examples, independent)
		nll += reg.Penalty(store.Weight)
		reg.AddGradient(store.Weight, store.Gradient)
		status = opt.Step(store.Weight, nll, store.Gradient)
	}
}
