package crf

import (
	"testing"

	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/param"
)

func TestTriModelADispatch(t *testing.T) {
	topic := param.New()
	zFlight, _ := topic.InternState("FLIGHT")
	zHotel, _ := topic.InternState("HOTEL")
	tfid, _ := topic.InternFeature("word=denver")
	topic.Record(zFlight, tfid)
	topic.Record(zHotel, tfid)
	if err := topic.Finalize(); err != nil {
		t.Fatal(err)
	}
	topic.Weight[topic.ObsIndexOf(zFlight)[0].WIdx] = 3.0
	topic.Weight[topic.ObsIndexOf(zHotel)[0].WIdx] = -3.0

	seqStores := make([]*param.Store, topic.NumStates())
	for z := 0; z < topic.NumStates(); z++ {
		seqStores[z] = param.New()
	}

	flightStore := seqStores[zFlight]
	yCity, _ := flightStore.InternState("CITY_NAME-B")
	fid, _ := flightStore.InternFeature("word=denver")
	flightStore.Record(yCity, fid)
	flightStore.RecordTrans(param.BoundaryState, yCity)
	if err := flightStore.Finalize(); err != nil {
		t.Fatal(err)
	}
	flightStore.Weight[flightStore.ObsIndexOf(yCity)[0].WIdx] = 2.0

	for z := 0; z < topic.NumStates(); z++ {
		if z == zFlight {
			continue
		}
		if err := seqStores[z].Finalize(); err != nil {
			t.Fatal(err)
		}
	}

	m := &TriModel{Kind: TriCRFA, Topic: topic, PerTopicSeq: seqStores}
	topicEvent := example.StringEvent{Feats: []example.StringFeaturePair{{Name: "word=denver", Val: 1}}}
	seq := example.StringSequence{{Feats: []example.StringFeaturePair{{Name: "word=denver", Val: 1}}}}

	gotTopic, labels, score := m.Predict(topicEvent, seq)
	if gotTopic != zFlight {
		t.Fatalf("predicted topic %d, want FLIGHT (%d)", gotTopic, zFlight)
	}
	if len(labels) != 1 || labels[0] != yCity {
		t.Fatalf("predicted labels %v, want [%d]", labels, yCity)
	}
	if score <= 0 {
		t.Fatalf("combined score = %v, want > 0", score)
	}
}

func TestTriModelParamCountSumsAllStores(t *testing.T) {
	topic := param.New()
	topic.InternState("FLIGHT")
	if err := topic.Finalize(); err != nil {
		t.Fatal(err)
	}

	shared := param.New()
	y, _ := shared.InternState("CITY")
	fid, _ := shared.InternFeature("word=denver")
	shared.Record(y, fid)
	if err := shared.Finalize(); err != nil {
		t.Fatal(err)
	}

	m := &TriModel{Kind: TriCRFB, Topic: topic, SharedSeq: shared}
	want := topic.Size() + shared.Size()
	if got := m.ParamCount(); got != want {
		t.Fatalf("ParamCount = %d, want %d", got, want)
	}
}

func TestBuildZYIndexIncludesDefault(t *testing.T) {
	data := []example.TriSequence{
		{
			Topic: example.Event{Label: 0},
			Seq:   example.Sequence{{Label: 5}, {Label: 6}},
		},
	}
	idx := BuildZYIndex(data)
	states := idx[0]
	seen := map[int]bool{}
	for _, y := range states {
		seen[y] = true
	}
	if !seen[5] || !seen[6] {
		t.Fatalf("ZYIndex[0] = %v, want 5 and 6 present", states)
	}
	if !seen[param.DefaultStateID] {
		t.Fatalf("ZYIndex[0] = %v, want default state included", states)
	}
}
