package crf

import (
	"math"
	"testing"

	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/param"
)

func buildTestStore(t *testing.T) (*param.Store, int, int, int, int) {
	t.Helper()
	s := param.New()
	yA, err := s.InternState("A")
	if err != nil {
		t.Fatal(err)
	}
	yB, err := s.InternState("B")
	if err != nil {
		t.Fatal(err)
	}
	f1, _ := s.InternFeature("f1")
	f2, _ := s.InternFeature("f2")
	if _, err := s.Record(yA, f1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(yB, f2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordTrans(param.BoundaryState, yA); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordTrans(yA, yB); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordTrans(yB, yA); err != nil {
		t.Fatal(err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}

	obsAW := s.ObsIndexOf(yA)[0].WIdx
	obsBW := s.ObsIndexOf(yB)[0].WIdx
	s.Weight[obsAW] = 1.2
	s.Weight[obsBW] = 0.8
	s.Weight[s.TransWeightIndex(param.BoundaryState, yA)] = 0.5
	s.Weight[s.TransWeightIndex(yA, yB)] = 0.9
	s.Weight[s.TransWeightIndex(yB, yA)] = 0.3

	return s, yA, yB, f1, f2
}

func testSequence(f1, f2 int) example.Sequence {
	return example.Sequence{
		{Label: 0, Value: 1, Feats: []example.FeaturePair{{FID: f1, Val: 1}}},
		{Label: 0, Value: 1, Feats: []example.FeaturePair{{FID: f2, Val: 1}}},
	}
}

func TestNodeMarginalsSumToOne(t *testing.T) {
	s, _, _, f1, f2 := buildTestStore(t)
	seq := testSequence(f1, f2)
	lat := Build(s, seq)
	lat.Run()

	for i := 0; i < lat.T; i++ {
		sum := 0.0
		for y := 0; y < lat.S; y++ {
			sum += lat.NodeMarginal(i, y)
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Fatalf("position %d: node marginals sum to %v, want 1", i, sum)
		}
	}
}

func TestEdgeMarginalsSumToOne(t *testing.T) {
	s, _, _, f1, f2 := buildTestStore(t)
	seq := testSequence(f1, f2)
	lat := Build(s, seq)
	lat.Run()

	sum := 0.0
	for y1 := 0; y1 < lat.S; y1++ {
		for y2 := 0; y2 < lat.S; y2++ {
			sum += lat.EdgeMarginal(1, y1, y2)
		}
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("edge marginals sum to %v, want 1", sum)
	}
}

// TestForwardViterbiAgreement brute-forces every path over the tiny
// 3-state lattice and checks that Viterbi finds the max-scoring one, and
// that the max path score relates to LogZ the way a partition function
// must (no single path can score higher than log Z).
func TestForwardViterbiAgreement(t *testing.T) {
	s, _, _, f1, f2 := buildTestStore(t)
	seq := testSequence(f1, f2)
	lat := Build(s, seq)
	lat.Run()

	bestBrute := math.Inf(-1)
	for y0 := 0; y0 < lat.S; y0++ {
		for y1 := 0; y1 < lat.S; y1++ {
			score := lat.boundaryTransLog[y0] + lat.RLog[0][y0] + lat.TransLog[y0][y1] + lat.RLog[1][y1]
			if score > bestBrute {
				bestBrute = score
			}
		}
	}

	_, viterbiScore := lat.Viterbi()
	if math.Abs(viterbiScore-bestBrute) > 1e-9 {
		t.Fatalf("Viterbi score = %v, brute-force best = %v", viterbiScore, bestBrute)
	}
	if viterbiScore > lat.LogZ+1e-9 {
		t.Fatalf("best path score %v exceeds log Z %v", viterbiScore, lat.LogZ)
	}
}

func TestLatticeDeterministic(t *testing.T) {
	s, _, _, f1, f2 := buildTestStore(t)
	seq := testSequence(f1, f2)

	lat1 := Build(s, seq)
	lat1.Run()
	path1, score1 := lat1.Viterbi()

	lat2 := Build(s, seq)
	lat2.Run()
	path2, score2 := lat2.Viterbi()

	if score1 != score2 {
		t.Fatalf("scores differ across runs: %v vs %v", score1, score2)
	}
	for i := range path1 {
		if path1[i] != path2[i] {
			t.Fatalf("paths differ across runs: %v vs %v", path1, path2)
		}
	}
}

func TestJointPosteriorSumsToOneWithoutSequenceCoupling(t *testing.T) {
	s := param.New()
	zFlight, _ := s.InternState("FLIGHT")
	zHotel, _ := s.InternState("HOTEL")
	fid, _ := s.InternFeature("word=denver")
	if _, err := s.Record(zFlight, fid); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(zHotel, fid); err != nil {
		t.Fatal(err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	s.Weight[s.ObsIndexOf(zFlight)[0].WIdx] = 2.0
	s.Weight[s.ObsIndexOf(zHotel)[0].WIdx] = 0.1

	ev := example.Event{Feats: []example.FeaturePair{{FID: fid, Val: 1}}}
	scores := TopicLogScores(s, ev)
	gamma, _ := JointPosterior(scores, make([]float64, len(scores)))

	sum := 0.0
	for _, g := range gamma {
		sum += g
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("topic posterior sums to %v, want 1", sum)
	}
	if gamma[zFlight] <= gamma[zHotel] {
		t.Fatalf("expected FLIGHT to dominate: gamma=%v", gamma)
	}
}
