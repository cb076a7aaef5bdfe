package param

import "github.com/spokenlu/tricrf/example"

// InternSequence converts a StringSequence read from training data into an
// interned Sequence, recording every (state, feature) and consecutive
// (state, state) co-occurrence it sees so Finalize can allocate weight
// slots for them. The boundary transition BoundaryState->y0 is recorded
// for the first event of every sequence, matching Param.h's treatment of
// M[0] as a transition out of a virtual start state.
func (s *Store) InternSequence(ss example.StringSequence) (example.Sequence, error) {
	seq := make(example.Sequence, len(ss))
	prev := BoundaryState
	for i, se := range ss {
		y, err := s.InternState(se.Label)
		if err != nil {
			return nil, err
		}
		feats := make([]example.FeaturePair, len(se.Feats))
		for j, sf := range se.Feats {
			fid, err := s.InternFeature(sf.Name)
			if err != nil {
				return nil, err
			}
			if _, err := s.Record(y, fid); err != nil {
				return nil, err
			}
			feats[j] = example.FeaturePair{FID: fid, Val: sf.Val}
		}
		if _, err := s.RecordTrans(prev, y); err != nil {
			return nil, err
		}
		seq[i] = example.Event{Label: y, Value: se.Value, Feats: feats}
		prev = y
	}
	return seq, nil
}

// InternIndependentSequence interns each event in ss as its own MaxEnt
// decision: observation features are recorded exactly as InternSequence
// does, but the only transition recorded is the boundary->y bias for that
// event, never a chain to the previous event's label. This keeps a MaxEnt
// store free of inter-token transition weights even when a record holds
// more than one event.
func (s *Store) InternIndependentSequence(ss example.StringSequence) (example.Sequence, error) {
	seq := make(example.Sequence, len(ss))
	for i, se := range ss {
		y, err := s.InternState(se.Label)
		if err != nil {
			return nil, err
		}
		feats := make([]example.FeaturePair, len(se.Feats))
		for j, sf := range se.Feats {
			fid, err := s.InternFeature(sf.Name)
			if err != nil {
				return nil, err
			}
			if _, err := s.Record(y, fid); err != nil {
				return nil, err
			}
			feats[j] = example.FeaturePair{FID: fid, Val: sf.Val}
		}
		if _, err := s.RecordTrans(BoundaryState, y); err != nil {
			return nil, err
		}
		seq[i] = example.Event{Label: y, Value: se.Value, Feats: feats}
	}
	return seq, nil
}

// EncodeSequence converts a StringSequence at test/decode time using only
// dictionary lookups: unknown states map to DefaultStateID, unknown
// features are dropped, and no weight slots are allocated. The store need
// not be finalized, though in practice it always is by decode time.
func (s *Store) EncodeSequence(ss example.StringSequence) example.Sequence {
	seq := make(example.Sequence, len(ss))
	for i, se := range ss {
		y, ok := s.FindState(se.Label)
		if !ok {
			y = DefaultStateID
		}
		feats := make([]example.FeaturePair, 0, len(se.Feats))
		for _, sf := range se.Feats {
			fid, ok := s.FindFeature(sf.Name)
			if !ok {
				continue
			}
			feats = append(feats, example.FeaturePair{FID: fid, Val: sf.Val})
		}
		seq[i] = example.Event{Label: y, Value: se.Value, Feats: feats}
	}
	return seq
}
