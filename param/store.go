// Package param implements the parameter store shared by every model kind:
// feature and state dictionaries, the weight/gradient/empirical-count
// vectors, and the (state, observation) index the inference engine scores
// against. Its flat, contiguous []float64 parameter arrays generalize
// hmmlib.HMM's Trans/Init/Mean/Std arrays from a fixed-shape HMM to a
// sparse, dictionary-grown CRF parameter space.
package param

import (
	"sort"

	"github.com/pkg/errors"
)

// BoundaryState is the sentinel "previous state" used for the M[0]
// start->y transition. It never appears in the state dictionary.
const BoundaryState = -1

// DefaultStateID is the reserved state id substituted for an unseen label
// at test time. It is always assigned first, at id 0.
const DefaultStateID = 0

// DefaultStateName names the reserved default state.
const DefaultStateName = "<default>"

// ObsParam is one (feature, weight-slot) pair in a state's observation
// index, mirroring Param.h's ObsParam{y, fid, fval} with fval looked up
// separately from the owning Event rather than duplicated here.
type ObsParam struct {
	FID  int
	WIdx int
}

// StateParam is one transition weight slot, mirroring Param.h's
// StateParam{y1, y2, fid}. Y1 may be BoundaryState for the start transition.
type StateParam struct {
	Y1, Y2 int
	WIdx   int
}

// Store owns the feature/state dictionaries and the parallel weight,
// gradient, and empirical-count vectors for one parameter namespace (the
// topic level, or one topic's sequence level, or the single namespace of a
// linear-chain / MaxEnt model).
type Store struct {
	featureMap map[string]int
	featureVec []string

	stateMap map[string]int
	stateVec []string

	// obsSeen/transSeen map a (y, fid) or (y1, y2) pair to its weight
	// index. Populated only before Finalize; afterward the only change
	// is PruneFeatures removing pruned entries from obsSeen.
	obsSeen   map[[2]int]int
	transSeen map[[2]int]int

	// transCount is the empirical bigram count, used by MakeTiedPotential.
	transCount map[[2]int]float64

	// obsCount is the empirical (state, feature) co-occurrence count, used
	// by PruneFeatures.
	obsCount map[[2]int]float64

	defaultEdgeWIdx int
	haveDefaultEdge bool

	finalized bool

	// Weight, Gradient, Count are parallel vectors of length Size(),
	// allocated by Finalize and mutated exclusively by the optimizer
	// (Weight) or the gradient assembler (Gradient, Count) thereafter.
	Weight   []float64
	Gradient []float64
	Count    []float64

	// ParamIndex[y] lists every (fid, widx) pair recorded against state
	// y, sorted by fid for cache-friendly scoring.
	ParamIndex [][]ObsParam

	// TransIndex[y1] lists every y2 this y1 was seen transitioning into.
	TransIndex map[int][]StateParam

	// Tied-potential mode (optional): once MakeTiedPotential runs,
	// TransIndex keeps only bigrams with empirical count >= K (their own
	// weight slot), TiedThreshold holds K, and TiedWIdx holds the shared
	// weight index used for every other bigram.
	TiedThreshold float64
	TiedWIdx      int
	HaveTied      bool
}

// New returns an empty, writable Store with the default state interned.
func New() *Store {
	s := &Store{
		featureMap: make(map[string]int),
		stateMap:   make(map[string]int),
		obsSeen:    make(map[[2]int]int),
		transSeen:  make(map[[2]int]int),
		transCount: make(map[[2]int]float64),
		obsCount:   make(map[[2]int]float64),
	}
	s.internState(DefaultStateName)
	return s
}

func (s *Store) internState(name string) int {
	if id, ok := s.stateMap[name]; ok {
		return id
	}
	id := len(s.stateVec)
	s.stateMap[name] = id
	s.stateVec = append(s.stateVec, name)
	return id
}

// InternState assigns (or returns) the id for a state name. Idempotent.
func (s *Store) InternState(name string) (int, error) {
	if s.finalized {
		return 0, errors.New("param: InternState called after Finalize")
	}
	return s.internState(name), nil
}

func (s *Store) internFeature(name string) int {
	if id, ok := s.featureMap[name]; ok {
		return id
	}
	id := len(s.featureVec)
	s.featureMap[name] = id
	s.featureVec = append(s.featureVec, name)
	return id
}

// InternFeature assigns (or returns) the id for a feature name. Idempotent.
func (s *Store) InternFeature(name string) (int, error) {
	if s.finalized {
		return 0, errors.New("param: InternFeature called after Finalize")
	}
	return s.internFeature(name), nil
}

// Record registers that feature fid co-occurs with state y, allocating an
// observation-weight slot on first sighting. Duplicate calls return the
// existing index.
func (s *Store) Record(y, fid int) (int, error) {
	if s.finalized {
		return 0, errors.New("param: Record called after Finalize")
	}
	key := [2]int{y, fid}
	s.obsCount[key]++
	if widx, ok := s.obsSeen[key]; ok {
		return widx, nil
	}
	widx := len(s.obsSeen) + len(s.transSeen)
	s.obsSeen[key] = widx
	return widx, nil
}

// RecordTrans registers an observed (y1, y2) bigram (y1 may be
// BoundaryState), allocating a transition-weight slot on first sighting,
// and bumps its empirical count for MakeTiedPotential.
func (s *Store) RecordTrans(y1, y2 int) (int, error) {
	if s.finalized {
		return 0, errors.New("param: RecordTrans called after Finalize")
	}
	key := [2]int{y1, y2}
	s.transCount[key]++
	if widx, ok := s.transSeen[key]; ok {
		return widx, nil
	}
	widx := len(s.obsSeen) + len(s.transSeen)
	s.transSeen[key] = widx
	if !s.haveDefaultEdge {
		s.defaultEdgeWIdx = widx
		s.haveDefaultEdge = true
	}
	return widx, nil
}

// Size returns the number of weight slots (W). Valid only after Finalize.
func (s *Store) Size() int { return len(s.Weight) }

// Finalize builds ParamIndex/TransIndex, allocates Weight/Gradient/Count
// as zero vectors of length W, and freezes dictionary and slot growth.
func (s *Store) Finalize() error {
	if s.finalized {
		return errors.New("param: Finalize called twice")
	}
	w := len(s.obsSeen) + len(s.transSeen)
	s.Weight = make([]float64, w)
	s.Gradient = make([]float64, w)
	s.Count = make([]float64, w)

	byState := make(map[int][]ObsParam)
	for key, widx := range s.obsSeen {
		y, fid := key[0], key[1]
		byState[y] = append(byState[y], ObsParam{FID: fid, WIdx: widx})
	}
	s.ParamIndex = make([][]ObsParam, len(s.stateVec))
	for y, list := range byState {
		sort.Slice(list, func(i, j int) bool { return list[i].FID < list[j].FID })
		s.ParamIndex[y] = list
	}

	s.TransIndex = make(map[int][]StateParam)
	for key, widx := range s.transSeen {
		y1, y2 := key[0], key[1]
		s.TransIndex[y1] = append(s.TransIndex[y1], StateParam{Y1: y1, Y2: y2, WIdx: widx})
	}
	for y1 := range s.TransIndex {
		list := s.TransIndex[y1]
		sort.Slice(list, func(i, j int) bool { return list[i].Y2 < list[j].Y2 })
		s.TransIndex[y1] = list
	}

	if !s.haveDefaultEdge {
		// No transitions were ever recorded (e.g. a MaxEnt model); reserve
		// a single harmless slot so TransWeight never indexes out of range.
		s.defaultEdgeWIdx = len(s.Weight)
		s.Weight = append(s.Weight, 0)
		s.Gradient = append(s.Gradient, 0)
		s.Count = append(s.Count, 0)
	}

	s.finalized = true
	return nil
}

// Finalized reports whether Finalize has run.
func (s *Store) Finalized() bool { return s.finalized }

// ObsIndexOf returns the (fid, widx) pairs recorded for state y, sorted by
// fid, or nil if y has no recorded observation features.
func (s *Store) ObsIndexOf(y int) []ObsParam {
	if y < 0 || y >= len(s.ParamIndex) {
		return nil
	}
	return s.ParamIndex[y]
}

// TransWeightIndex returns the weight index for the (y1, y2) transition,
// falling back to the wildcard default-edge slot when the bigram was never
// observed during training. Under tied-potential mode, a bigram whose
// empirical count fell below the threshold is redirected to the shared
// tied slot instead of its own individually recorded one.
func (s *Store) TransWeightIndex(y1, y2 int) int {
	key := [2]int{y1, y2}
	widx, ok := s.transSeen[key]
	if !ok {
		return s.defaultEdgeWIdx
	}
	if s.HaveTied && s.transCount[key] < s.TiedThreshold {
		return s.TiedWIdx
	}
	return widx
}

// WIdxOf returns the observation weight slot for (y, fid), or (0, false)
// if that pair was never recorded during training. Used by the gradient
// assembler to accumulate empirical and expected counts directly against
// the weight vector.
func (s *Store) WIdxOf(y, fid int) (int, bool) {
	widx, ok := s.obsSeen[[2]int{y, fid}]
	return widx, ok
}

// FindState returns the id for name, or (0, false) if name is unknown.
// Callers substitute DefaultStateID when ok is false.
func (s *Store) FindState(name string) (int, bool) {
	id, ok := s.stateMap[name]
	return id, ok
}

// FindFeature returns the id for name, or (0, false) if name is unknown.
// Callers simply drop the feature when ok is false: an unseen feature
// contributes nothing to the score.
func (s *Store) FindFeature(name string) (int, bool) {
	id, ok := s.featureMap[name]
	return id, ok
}

// StateName returns the name for a state id.
func (s *Store) StateName(y int) string {
	if y < 0 || y >= len(s.stateVec) {
		return DefaultStateName
	}
	return s.stateVec[y]
}

// NumStates returns the number of interned states (always >= 1, the
// reserved default state).
func (s *Store) NumStates() int { return len(s.stateVec) }

// NumFeatures returns the number of interned features.
func (s *Store) NumFeatures() int { return len(s.featureVec) }

// DefaultState returns the reserved default state id.
func (s *Store) DefaultState() int { return DefaultStateID }

// MakeTiedPotential splits recorded transitions into a "selected" set
// (empirical bigram count >= K, keeping their individual weight slot) and
// a shared tied slot for the long tail. It must be called after Finalize. The tied weight slot reuses the
// wildcard default-edge slot, since both represent "the transition wasn't
// distinctive enough to deserve its own parameter."
func (s *Store) MakeTiedPotential(k float64) error {
	if !s.finalized {
		return errors.New("param: MakeTiedPotential requires Finalize first")
	}
	s.TiedThreshold = k
	s.TiedWIdx = s.defaultEdgeWIdx
	s.HaveTied = true

	for y1, list := range s.TransIndex {
		kept := list[:0]
		for _, sp := range list {
			if s.transCount[[2]int{sp.Y1, sp.Y2}] >= k {
				kept = append(kept, sp)
			}
		}
		s.TransIndex[y1] = kept
	}
	return nil
}

// EmpiricalTransCount returns the number of times bigram (y1, y2) was
// observed during the training read pass.
func (s *Store) EmpiricalTransCount(y1, y2 int) float64 {
	return s.transCount[[2]int{y1, y2}]
}

// EmpiricalObsCount returns the number of times feature fid co-occurred
// with state y during the training read pass.
func (s *Store) EmpiricalObsCount(y, fid int) float64 {
	return s.obsCount[[2]int{y, fid}]
}

// PruneFeatures drops (state, feature) observation entries whose
// empirical count fell below minCount, from both ParamIndex (so the
// lattice builder never scores against them) and obsSeen (so WIdxOf
// stops returning their slot, keeping the gradient assembler's empirical
// and expected counts consistent). It must be called after Finalize; the
// underlying weight slot is left in place (unused, permanently
// zero-gradient) rather than renumbered, since widx values are shared
// with the transition index and renumbering would invalidate
// TransWeightIndex's slots too.
func (s *Store) PruneFeatures(minCount float64) error {
	if !s.finalized {
		return errors.New("param: PruneFeatures requires Finalize first")
	}
	for y, list := range s.ParamIndex {
		kept := list[:0]
		for _, op := range list {
			if s.obsCount[[2]int{y, op.FID}] >= minCount {
				kept = append(kept, op)
			} else {
				delete(s.obsSeen, [2]int{y, op.FID})
			}
		}
		s.ParamIndex[y] = kept
	}
	return nil
}
