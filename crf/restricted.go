package crf

import (
	"math"

	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/param"
)

// BuildRestricted scores seq against store as Build does, but only over
// the given subset of state ids, remapping them to a dense 0..len(states)-1
// range internally. This is TriCRF2.h's m_zy_index ("topic-to-sequence
// state mapping") applied to a shared parameter store: a topic only ever
// competes for the labels it was seen governing during training, instead
// of the full label set of every other topic.
func BuildRestricted(store *param.Store, seq example.Sequence, states []int) *Lattice {
	t := len(seq)
	s := len(states)

	l := &Lattice{T: t, S: s}
	l.R = make([][]float64, t)
	l.RLog = make([][]float64, t)
	for i, ev := range seq {
		l.R[i] = make([]float64, s)
		l.RLog[i] = make([]float64, s)
		for k, y := range states {
			ns := nodeScore(store, ev, y)
			l.RLog[i][k] = ns
			l.R[i][k] = math.Exp(ns)
		}
	}

	l.Trans = make([][]float64, s)
	l.TransLog = make([][]float64, s)
	for k1, y1 := range states {
		l.Trans[k1] = make([]float64, s)
		l.TransLog[k1] = make([]float64, s)
		for k2, y2 := range states {
			w := store.Weight[store.TransWeightIndex(y1, y2)]
			l.TransLog[k1][k2] = w
			l.Trans[k1][k2] = math.Exp(w)
		}
	}
	l.boundaryTrans = make([]float64, s)
	l.boundaryTransLog = make([]float64, s)
	for k, y := range states {
		w := store.Weight[store.TransWeightIndex(param.BoundaryState, y)]
		l.boundaryTransLog[k] = w
		l.boundaryTrans[k] = math.Exp(w)
	}

	return l
}
