package param

import (
	"bytes"
	"testing"

	"github.com/spokenlu/tricrf/example"
)

func TestInternSequenceAssignsSlotsAndFinalize(t *testing.T) {
	s := New()
	ss := example.StringSequence{
		{Label: "B-PER", Value: 1, Feats: []example.StringFeaturePair{{Name: "word=John", Val: 1}}},
		{Label: "O", Value: 1, Feats: []example.StringFeaturePair{{Name: "word=said", Val: 1}}},
	}
	if _, err := s.InternSequence(ss); err != nil {
		t.Fatalf("InternSequence: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if s.NumStates() != 3 { // <default>, B-PER, O
		t.Fatalf("NumStates = %d, want 3", s.NumStates())
	}
	if s.NumFeatures() != 2 {
		t.Fatalf("NumFeatures = %d, want 2", s.NumFeatures())
	}
	if s.Size() == 0 {
		t.Fatal("Size() = 0, want > 0 after Finalize")
	}

	yBPER, ok := s.FindState("B-PER")
	if !ok {
		t.Fatal("B-PER not interned")
	}
	if idx := s.ObsIndexOf(yBPER); len(idx) != 1 {
		t.Fatalf("ObsIndexOf(B-PER) = %v, want 1 entry", idx)
	}

	// The boundary->B-PER transition must have been recorded.
	if got := s.EmpiricalTransCount(BoundaryState, yBPER); got != 1 {
		t.Fatalf("EmpiricalTransCount(boundary, B-PER) = %v, want 1", got)
	}
}

func TestRecordAfterFinalizeFails(t *testing.T) {
	s := New()
	y, _ := s.InternState("X")
	fid, _ := s.InternFeature("f")
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := s.Record(y, fid); err == nil {
		t.Fatal("expected error recording after Finalize")
	}
	if _, err := s.InternState("Y"); err == nil {
		t.Fatal("expected error interning after Finalize")
	}
}

func TestEncodeSequenceUnknownFallback(t *testing.T) {
	s := New()
	ss := example.StringSequence{
		{Label: "B-PER", Value: 1, Feats: []example.StringFeaturePair{{Name: "word=John", Val: 1}}},
	}
	if _, err := s.InternSequence(ss); err != nil {
		t.Fatalf("InternSequence: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	unseen := example.StringSequence{
		{Label: "NEVER-SEEN", Value: 1, Feats: []example.StringFeaturePair{
			{Name: "word=John", Val: 1},
			{Name: "never-seen-feature", Val: 1},
		}},
	}
	enc := s.EncodeSequence(unseen)
	if enc[0].Label != DefaultStateID {
		t.Fatalf("Label = %d, want DefaultStateID", enc[0].Label)
	}
	if len(enc[0].Feats) != 1 {
		t.Fatalf("Feats = %v, want 1 (unseen feature dropped)", enc[0].Feats)
	}
}

func TestTransWeightIndexFallsBackToWildcard(t *testing.T) {
	s := New()
	ss := example.StringSequence{
		{Label: "A", Value: 1},
		{Label: "B", Value: 1},
	}
	if _, err := s.InternSequence(ss); err != nil {
		t.Fatalf("InternSequence: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	yA, _ := s.FindState("A")
	yB, _ := s.FindState("B")

	seen := s.TransWeightIndex(yA, yB)
	unseen := s.TransWeightIndex(yB, yA)
	if seen == unseen {
		t.Fatalf("expected the unseen bigram to fall back to the wildcard slot, got same index %d", seen)
	}
}

func TestMakeTiedPotentialRequiresFinalize(t *testing.T) {
	s := New()
	if err := s.MakeTiedPotential(2); err == nil {
		t.Fatal("expected error before Finalize")
	}
}

func TestMakeTiedPotentialRedirectsRareBigrams(t *testing.T) {
	s := New()
	yA, _ := s.InternState("A")
	yB, _ := s.InternState("B")
	yC, _ := s.InternState("C")
	// A->B seen 3 times (frequent), A->C seen once (rare).
	for i := 0; i < 3; i++ {
		if _, err := s.RecordTrans(yA, yB); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.RecordTrans(yA, yC); err != nil {
		t.Fatal(err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	frequentWIdx := s.TransWeightIndex(yA, yB)
	if err := s.MakeTiedPotential(2); err != nil {
		t.Fatal(err)
	}
	if s.TransWeightIndex(yA, yB) != frequentWIdx {
		t.Fatalf("frequent bigram weight index changed under tied mode")
	}
	if got := s.TransWeightIndex(yA, yC); got != s.TiedWIdx {
		t.Fatalf("rare bigram weight index = %d, want tied slot %d", got, s.TiedWIdx)
	}
}

func TestPruneFeaturesDropsRareObservations(t *testing.T) {
	s := New()
	ss := example.StringSequence{
		{Label: "A", Value: 1, Feats: []example.StringFeaturePair{
			{Name: "common", Val: 1},
			{Name: "rare", Val: 1},
		}},
	}
	if _, err := s.InternSequence(ss); err != nil {
		t.Fatalf("InternSequence: %v", err)
	}
	// Repeat "common" with state A two more times so its count is 3; "rare" stays at 1.
	for i := 0; i < 2; i++ {
		yA, _ := s.InternState("A")
		fidCommon, _ := s.InternFeature("common")
		if _, err := s.Record(yA, fidCommon); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	yA, _ := s.FindState("A")
	if len(s.ObsIndexOf(yA)) != 2 {
		t.Fatalf("ObsIndexOf(A) before prune = %d entries, want 2", len(s.ObsIndexOf(yA)))
	}

	if err := s.PruneFeatures(2); err != nil {
		t.Fatalf("PruneFeatures: %v", err)
	}

	idx := s.ObsIndexOf(yA)
	if len(idx) != 1 {
		t.Fatalf("ObsIndexOf(A) after prune = %d entries, want 1", len(idx))
	}
	fidCommon, _ := s.FindFeature("common")
	if idx[0].FID != fidCommon {
		t.Fatalf("surviving feature = %d, want %d (common)", idx[0].FID, fidCommon)
	}

	fidRare, _ := s.FindFeature("rare")
	if _, ok := s.WIdxOf(yA, fidRare); ok {
		t.Fatal("WIdxOf should no longer resolve a pruned feature")
	}
	if _, ok := s.WIdxOf(yA, fidCommon); !ok {
		t.Fatal("WIdxOf should still resolve the surviving feature")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New()
	ss := example.StringSequence{
		{Label: "B-PER", Value: 1, Feats: []example.StringFeaturePair{{Name: "word=John", Val: 1}}},
		{Label: "O", Value: 1, Feats: []example.StringFeaturePair{{Name: "word=said", Val: 1}}},
	}
	if _, err := s.InternSequence(ss); err != nil {
		t.Fatalf("InternSequence: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	for i := range s.Weight {
		s.Weight[i] = float64(i) * 0.5
	}

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NumStates() != s.NumStates() || loaded.NumFeatures() != s.NumFeatures() {
		t.Fatalf("dictionary sizes mismatch after round trip")
	}
	if len(loaded.Weight) != len(s.Weight) {
		t.Fatalf("weight length mismatch: got %d, want %d", len(loaded.Weight), len(s.Weight))
	}
	for i := range s.Weight {
		if loaded.Weight[i] != s.Weight[i] {
			t.Fatalf("weight[%d] = %v, want %v", i, loaded.Weight[i], s.Weight[i])
		}
	}

	yBPER, ok := loaded.FindState("B-PER")
	if !ok {
		t.Fatal("B-PER missing after round trip")
	}
	if len(loaded.ObsIndexOf(yBPER)) != 1 {
		t.Fatalf("ObsIndexOf(B-PER) after round trip = %v", loaded.ObsIndexOf(yBPER))
	}
}
