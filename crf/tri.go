package crf

import (
	"math"
	"sort"

	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/param"
)

// ModelKind tags which of the five model variants a Driver is training or
// decoding: a single flat type switch standing in for a MaxEnt -> CRF ->
// TriCRF1/2/3 inheritance hierarchy.
type ModelKind int

const (
	MaxEnt ModelKind = iota
	LinearCRF
	TriCRFA // per-topic parameters, unrestricted label set (TriCRF1.h)
	TriCRFB // shared parameters, topic-restricted label subset (TriCRF2.h)
	TriCRFC // per-topic parameters, topic-restricted label subset (TriCRF3.h)
)

func (k ModelKind) String() string {
	switch k {
	case MaxEnt:
		return "MaxEnt"
	case LinearCRF:
		return "CRF"
	case TriCRFA:
		return "TriCRF1"
	case TriCRFB:
		return "TriCRF2"
	case TriCRFC:
		return "TriCRF3"
	default:
		return "unknown"
	}
}

// TriModel bundles everything needed to score and decode a triangular
// sequence: the topic-level store and, depending on Kind, either one
// sequence store per topic (A, C) or a single shared store (B). B and C
// additionally restrict each topic to its allowed states via ZYIndex.
type TriModel struct {
	Kind ModelKind

	Topic *param.Store

	// PerTopicSeq is indexed by topic state id; used by TriCRFA/TriCRFC.
	PerTopicSeq []*param.Store

	// SharedSeq is used by TriCRFB.
	SharedSeq *param.Store

	// ZYIndex maps a topic state id to the sequence-state ids ever seen
	// governed by that topic. Used by TriCRFB/TriCRFC; nil entries (or a
	// nil map) mean "no restriction", i.e. TriCRFA's behavior.
	ZYIndex map[int][]int
}

// SeqStoreForTopic returns the sequence-level store used to score topic
// z's tokens (and name its predicted states), along with whether z is a
// valid topic state id.
func (m *TriModel) SeqStoreForTopic(z int) (*param.Store, bool) {
	switch m.Kind {
	case TriCRFA, TriCRFC:
		if z < 0 || z >= len(m.PerTopicSeq) {
			return nil, false
		}
		return m.PerTopicSeq[z], true
	default:
		return m.SharedSeq, m.SharedSeq != nil
	}
}

// DistinctSeqStores returns every distinct sequence-level store the model
// owns, in a fixed, deterministic order (topic id order for TriCRFA/C, or
// a single entry for TriCRFB's one shared store no matter how many topics
// it serves). The topic store itself is never included.
func (m *TriModel) DistinctSeqStores() []*param.Store {
	switch m.Kind {
	case TriCRFA, TriCRFC:
		out := make([]*param.Store, 0, len(m.PerTopicSeq))
		for _, s := range m.PerTopicSeq {
			if s != nil {
				out = append(out, s)
			}
		}
		return out
	default:
		if m.SharedSeq != nil {
			return []*param.Store{m.SharedSeq}
		}
		return nil
	}
}

// ParamCount returns the total number of weight slots across every store
// the model owns (the topic store plus whichever sequence store(s) its
// Kind uses), for AIC-style model-size reporting.
func (m *TriModel) ParamCount() int {
	n := m.Topic.Size()
	for _, s := range m.DistinctSeqStores() {
		n += s.Size()
	}
	return n
}

// Flatten allocates one combined weight vector and one combined gradient
// vector spanning the topic store plus every distinct sequence store the
// model owns, copies each store's current Weight into its span, and
// repoints every store's Weight/Gradient to a view into the shared
// backing arrays. A single lbfgs.Optimizer can then drive every store's
// parameters jointly through one Step call against the returned vectors,
// since Optimizer.Step mutates whatever slice it is given in place
// without caring what it represents.
func (m *TriModel) Flatten() (x, g []float64) {
	stores := append([]*param.Store{m.Topic}, m.DistinctSeqStores()...)
	total := 0
	for _, s := range stores {
		total += s.Size()
	}
	x = make([]float64, total)
	g = make([]float64, total)
	offset := 0
	for _, s := range stores {
		n := s.Size()
		copy(x[offset:offset+n], s.Weight)
		s.Weight = x[offset : offset+n]
		s.Gradient = g[offset : offset+n]
		offset += n
	}
	return x, g
}

// StoreAndStates returns the sequence-level store scoring topic z's
// tokens, together with the restricted state subset TriCRFB/TriCRFC score
// it over (nil for TriCRFA's unrestricted per-topic dictionaries).
func (m *TriModel) StoreAndStates(z int) (*param.Store, []int) {
	switch m.Kind {
	case TriCRFA:
		return m.PerTopicSeq[z], nil
	case TriCRFB:
		return m.SharedSeq, m.ZYIndex[z]
	case TriCRFC:
		return m.PerTopicSeq[z], m.ZYIndex[z]
	default:
		return m.SharedSeq, nil
	}
}

// latticeFor encodes seq against topic z's own store (per-topic stores
// keep independent feature/state dictionaries, so encoding must happen
// after the store is chosen, not before) and builds its lattice.
func (m *TriModel) latticeFor(z int, seq example.StringSequence) (*Lattice, []int) {
	store, states := m.StoreAndStates(z)
	encoded := store.EncodeSequence(seq)
	if states == nil {
		return Build(store, encoded), nil
	}
	return BuildRestricted(store, encoded, states), states
}

// Predict runs the topic-level decision and every topic's sequence
// Viterbi under the model's single joint partition. The chosen topic
// maximizes gamma[z]*score_z(best path), both left unnormalized as
// TriCRF1.h's argmax does: since log(gamma[z]) and the Viterbi path score
// are already in log domain, comparing their sum directly across topics
// picks the same topic normalizing by the joint Z(x) would, without
// penalizing topics whose sequence CRF happens to have higher entropy.
// The returned score is the actual joint posterior probability of the
// chosen (topic, label sequence) pair, p(y,z|x) = gamma[z]*score_z(y)/Z(x),
// with Z(x) = sum_z gamma[z]*Z_z built from every topic's own partition
// function (its lattice's LogZ), not from the best-path scores.
func (m *TriModel) Predict(topicEvent example.StringEvent, seq example.StringSequence) (topic int, labels []int, score float64) {
	topicEv := m.Topic.EncodeSequence(example.StringSequence{topicEvent})[0]
	topicLogScores := TopicLogScores(m.Topic, topicEv)

	n := m.Topic.NumStates()
	viterbiScore := make([]float64, n)
	seqLogZ := make([]float64, n)
	paths := make([][]int, n)

	for z := 0; z < n; z++ {
		lat, states := m.latticeFor(z, seq)
		lat.Run()
		path, vs := lat.Viterbi()
		viterbiScore[z] = vs
		seqLogZ[z] = lat.LogZ
		paths[z] = mapBackStates(path, states)
	}

	bestTopic := 0
	bestLog := math.Inf(-1)
	for z := 0; z < n; z++ {
		v := topicLogScores[z] + viterbiScore[z]
		if v > bestLog {
			bestLog = v
			bestTopic = z
		}
	}

	_, jointLogZ := JointPosterior(topicLogScores, seqLogZ)
	return bestTopic, paths[bestTopic], math.Exp(bestLog - jointLogZ)
}

func mapBackStates(path, states []int) []int {
	if states == nil {
		return path
	}
	out := make([]int, len(path))
	for i, k := range path {
		out[i] = states[k]
	}
	return out
}

// BuildZYIndex scans interned triangular training data and records, for
// every topic state id, the set of sequence-state ids it was seen
// governing. It always includes the reserved default state so an unseen
// test-time label still maps to a valid restricted-lattice column. The
// per-topic list is sorted so the restricted lattice's column order (and
// therefore the gradient's floating-point summation order) is the same
// across runs given the same training data.
func BuildZYIndex(data []example.TriSequence) map[int][]int {
	seen := make(map[int]map[int]bool)
	for _, ts := range data {
		z := ts.Topic.Label
		set, ok := seen[z]
		if !ok {
			set = map[int]bool{param.DefaultStateID: true}
			seen[z] = set
		}
		for _, ev := range ts.Seq {
			set[ev.Label] = true
		}
	}
	out := make(map[int][]int, len(seen))
	for z, set := range seen {
		list := make([]int, 0, len(set))
		for y := range set {
			list = append(list, y)
		}
		sort.Ints(list)
		out[z] = list
	}
	return out
}
