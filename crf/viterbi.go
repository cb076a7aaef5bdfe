package crf

import "math"

// Viterbi returns the highest-scoring label sequence for the lattice and
// its log score, using the plain (unexponentiated) weight sums so no
// rescaling is needed, matching hmmlib.HMM's ReconstructParticle
// traceback shape generalized from a fixed HMM transition matrix to the
// lattice's per-position node potential.
func (l *Lattice) Viterbi() ([]int, float64) {
	t, s := l.T, l.S
	delta := make([][]float64, t)
	psi := make([][]int, t)

	delta[0] = make([]float64, s)
	psi[0] = make([]int, s)
	for y := 0; y < s; y++ {
		delta[0][y] = l.boundaryTransLog[y] + l.RLog[0][y]
		psi[0][y] = -1
	}

	for i := 1; i < t; i++ {
		delta[i] = make([]float64, s)
		psi[i] = make([]int, s)
		for y2 := 0; y2 < s; y2++ {
			best := math.Inf(-1)
			bestY1 := 0
			for y1 := 0; y1 < s; y1++ {
				v := delta[i-1][y1] + l.TransLog[y1][y2]
				if v > best {
					best = v
					bestY1 = y1
				}
			}
			delta[i][y2] = best + l.RLog[i][y2]
			psi[i][y2] = bestY1
		}
	}

	bestScore := math.Inf(-1)
	bestLast := 0
	for y := 0; y < s; y++ {
		if delta[t-1][y] > bestScore {
			bestScore = delta[t-1][y]
			bestLast = y
		}
	}

	path := make([]int, t)
	path[t-1] = bestLast
	for i := t - 1; i > 0; i-- {
		path[i-1] = psi[i][path[i]]
	}
	return path, bestScore
}
