package crf

import (
	"bytes"
	"testing"

	"github.com/spokenlu/tricrf/param"
)

func TestSaveLoadTriModelRoundTrip(t *testing.T) {
	topic := param.New()
	zA, _ := topic.InternState("A")
	zB, _ := topic.InternState("B")
	if err := topic.Finalize(); err != nil {
		t.Fatal(err)
	}

	perTopic := make([]*param.Store, topic.NumStates())
	for z := range perTopic {
		perTopic[z] = param.New()
		if err := perTopic[z].Finalize(); err != nil {
			t.Fatal(err)
		}
	}

	m := &TriModel{
		Kind:        TriCRFA,
		Topic:       topic,
		PerTopicSeq: perTopic,
	}

	var buf bytes.Buffer
	if err := SaveTriModel(&buf, m); err != nil {
		t.Fatalf("SaveTriModel: %v", err)
	}

	loaded, err := LoadTriModel(&buf)
	if err != nil {
		t.Fatalf("LoadTriModel: %v", err)
	}
	if loaded.Kind != TriCRFA {
		t.Fatalf("Kind = %v, want TriCRFA", loaded.Kind)
	}
	if loaded.Topic.NumStates() != topic.NumStates() {
		t.Fatalf("topic NumStates = %d, want %d", loaded.Topic.NumStates(), topic.NumStates())
	}
	if len(loaded.PerTopicSeq) != len(perTopic) {
		t.Fatalf("PerTopicSeq length = %d, want %d", len(loaded.PerTopicSeq), len(perTopic))
	}
	if _, ok := loaded.Topic.FindState("A"); !ok {
		t.Fatal("state A missing after round trip")
	}
	_ = zA
	_ = zB
}

func TestSaveLoadTriModelSharedKind(t *testing.T) {
	topic := param.New()
	topic.InternState("FLIGHT")
	if err := topic.Finalize(); err != nil {
		t.Fatal(err)
	}
	shared := param.New()
	shared.InternState("CITY-B")
	if err := shared.Finalize(); err != nil {
		t.Fatal(err)
	}

	m := &TriModel{
		Kind:      TriCRFB,
		Topic:     topic,
		SharedSeq: shared,
		ZYIndex:   map[int][]int{0: {0, 1}},
	}

	var buf bytes.Buffer
	if err := SaveTriModel(&buf, m); err != nil {
		t.Fatalf("SaveTriModel: %v", err)
	}
	loaded, err := LoadTriModel(&buf)
	if err != nil {
		t.Fatalf("LoadTriModel: %v", err)
	}
	if loaded.SharedSeq == nil {
		t.Fatal("SharedSeq is nil after round trip")
	}
	if len(loaded.ZYIndex[0]) != 2 {
		t.Fatalf("ZYIndex[0] = %v, want 2 entries", loaded.ZYIndex[0])
	}
}
