package train

import (
	"github.com/spokenlu/tricrf/crf"
	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/param"
)

// TriExample is one jointly-normalized training instance: the topic
// event (already interned against the model's single topic store) and
// the raw token sequence, kept unencoded so it can be re-scored against
// every topic's own sequence store each iteration, since TriCRFA/TriCRFC
// give every topic an independent feature and state dictionary.
type TriExample struct {
	TopicEvent example.Event
	Seq        example.StringSequence
	GoldTopic  int
}

// JointAssembler accumulates the negative log-likelihood and its
// gradient for a triangular model's single joint partition
// Z(x) = sum_z gamma[z]*Z_z(x), coupling the topic store to every
// sequence store the model owns instead of training them as independent
// models. Grounded on TriCRF1.h's single m_Z spanning both the topic
// prior and every topic's sequence CRF.
type JointAssembler struct {
	model *crf.TriModel

	empiricalCached bool
	empiricalTopic  []float64
	empiricalSeq    map[*param.Store][]float64
}

// NewJointAssembler returns an assembler for model. Every store model
// owns must already be Finalize'd.
func NewJointAssembler(model *crf.TriModel) *JointAssembler {
	return &JointAssembler{model: model}
}

func (g *JointAssembler) cacheEmpirical(examples []TriExample) {
	g.empiricalTopic = make([]float64, g.model.Topic.Size())
	g.empiricalSeq = make(map[*param.Store][]float64)
	for _, store := range g.model.DistinctSeqStores() {
		g.empiricalSeq[store] = make([]float64, store.Size())
	}

	for _, ex := range examples {
		for _, fp := range ex.TopicEvent.Feats {
			if widx, ok := g.model.Topic.WIdxOf(ex.GoldTopic, fp.FID); ok {
				g.empiricalTopic[widx] += fp.Val
			}
		}
		g.empiricalTopic[g.model.Topic.TransWeightIndex(param.BoundaryState, ex.GoldTopic)]++

		store, _ := g.model.StoreAndStates(ex.GoldTopic)
		emp := g.empiricalSeq[store]
		encoded := store.EncodeSequence(ex.Seq)
		prev := param.BoundaryState
		for _, ev := range encoded {
			y := ev.Label
			for _, fp := range ev.Feats {
				if widx, ok := store.WIdxOf(y, fp.FID); ok {
					emp[widx] += fp.Val
				}
			}
			emp[store.TransWeightIndex(prev, y)]++
			prev = y
		}
	}
	g.empiricalCached = true
}

// Evaluate computes the joint negative log-likelihood of examples under
// the model's current weights and accumulates dNLL/dWeight into every
// store's Gradient (zeroed first). Per spec, every example is scored
// against every topic's sequence store, not just its gold topic: the
// joint partition and the posterior topic marginal p(z|x) both require
// it, and that per-topic scoring is what couples the topic prior to the
// per-topic sequence CRFs.
func (g *JointAssembler) Evaluate(examples []TriExample) float64 {
	if !g.empiricalCached {
		g.cacheEmpirical(examples)
	}

	for i := range g.model.Topic.Gradient {
		g.model.Topic.Gradient[i] = 0
	}
	for _, store := range g.model.DistinctSeqStores() {
		for i := range store.Gradient {
			store.Gradient[i] = 0
		}
	}

	n := g.model.Topic.NumStates()
	nll := 0.0

	for _, ex := range examples {
		topicLogScores := crf.TopicLogScores(g.model.Topic, ex.TopicEvent)

		stores := make([]*param.Store, n)
		labelFns := make([]func(int) int, n)
		encoded := make([]example.Sequence, n)
		lats := make([]*crf.Lattice, n)
		seqLogZ := make([]float64, n)

		for z := 0; z < n; z++ {
			store, states := g.model.StoreAndStates(z)
			enc := store.EncodeSequence(ex.Seq)

			var lat *crf.Lattice
			var label func(int) int
			if states == nil {
				lat = crf.Build(store, enc)
				label = func(k int) int { return k }
			} else {
				lat = crf.BuildRestricted(store, enc, states)
				label = func(k int) int { return states[k] }
			}
			lat.Run()

			stores[z] = store
			labelFns[z] = label
			encoded[z] = enc
			lats[z] = lat
			seqLogZ[z] = lat.LogZ
		}

		p, jointLogZ := crf.JointPosterior(topicLogScores, seqLogZ)

		goldStore := stores[ex.GoldTopic]
		goldSeqScore := 0.0
		prev := param.BoundaryState
		for _, ev := range encoded[ex.GoldTopic] {
			y := ev.Label
			goldSeqScore += crf.NodeScore(goldStore, ev, y)
			goldSeqScore += goldStore.Weight[goldStore.TransWeightIndex(prev, y)]
			prev = y
		}
		nll -= topicLogScores[ex.GoldTopic] + goldSeqScore - jointLogZ

		// Topic-feature expected counts, weighted by the posterior topic
		// marginal p(z|x).
		for _, fp := range ex.TopicEvent.Feats {
			for z := 0; z < n; z++ {
				if widx, ok := g.model.Topic.WIdxOf(z, fp.FID); ok {
					g.model.Topic.Gradient[widx] += p[z] * fp.Val
				}
			}
		}
		for z := 0; z < n; z++ {
			widx := g.model.Topic.TransWeightIndex(param.BoundaryState, z)
			g.model.Topic.Gradient[widx] += p[z]
		}

		// Sequence-feature expected counts, weighted by p(z|x) times that
		// topic's own lattice marginals.
		for z := 0; z < n; z++ {
			if p[z] == 0 {
				continue
			}
			store := stores[z]
			label := labelFns[z]
			lat := lats[z]
			seq := encoded[z]

			for i, ev := range seq {
				for k := 0; k < lat.S; k++ {
					y := label(k)
					gamma := lat.NodeMarginal(i, k)
					if gamma == 0 {
						continue
					}
					weight := p[z] * gamma
					for _, fp := range ev.Feats {
						if widx, ok := store.WIdxOf(y, fp.FID); ok {
							store.Gradient[widx] += weight * fp.Val
						}
					}
				}
			}

			for k := 0; k < lat.S; k++ {
				y := label(k)
				widx := store.TransWeightIndex(param.BoundaryState, y)
				store.Gradient[widx] += p[z] * lat.BoundaryEdgeMarginal(k)
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
						widx := store.TransWeightIndex(y1, y2)
						store.Gradient[widx] += p[z] * xi
					}
				}
			}
		}
	}

	for i := range g.model.Topic.Gradient {
		g.model.Topic.Gradient[i] -= g.empiricalTopic[i]
	}
	for _, store := range g.model.DistinctSeqStores() {
		emp := g.empiricalSeq[store]
		for i := range store.Gradient {
			store.Gradient[i] -= emp[i]
		}
	}

	return nll
}
