package example

import (
	"strings"
	"testing"
)

func TestReadSequences(t *testing.T) {
	data := strings.Join([]string{
		"B-PER word=John word-1=<s>",
		"O word=said word-1=John",
		"",
		"O word=hello",
		"",
	}, "\n")

	ds, err := ReadSequences(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadSequences: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("got %d sequences, want 2", ds.Len())
	}
	if ds.ElementCount() != 3 {
		t.Fatalf("got %d events, want 3", ds.ElementCount())
	}

	seq0 := ds.At(0)
	if len(seq0) != 2 {
		t.Fatalf("seq0 has %d events, want 2", len(seq0))
	}
	if seq0[0].Label != "B-PER" {
		t.Fatalf("seq0[0].Label = %q, want B-PER", seq0[0].Label)
	}
	if len(seq0[0].Feats) != 2 || seq0[0].Feats[0].Name != "word=John" || seq0[0].Feats[0].Val != 1.0 {
		t.Fatalf("unexpected features: %+v", seq0[0].Feats)
	}
}

func TestReadSequencesFeatureValue(t *testing.T) {
	ds, err := ReadSequences(strings.NewReader("+ a:0.5 b:2\n"))
	if err != nil {
		t.Fatalf("ReadSequences: %v", err)
	}
	ev := ds.At(0)[0]
	if ev.Feats[0].Val != 0.5 || ev.Feats[1].Val != 2 {
		t.Fatalf("unexpected values: %+v", ev.Feats)
	}
}

func TestReadTriSequences(t *testing.T) {
	data := strings.Join([]string{
		"FLIGHT i wanna go from denver to indianapolis",
		"NONE word=i word-1=<s>",
		"FROMLOC.CITY_NAME-B word=denver word-1=from",
		"TOLOC.CITY_NAME-B word=indianapolis word-1=to",
		"",
		"HOTEL book a room",
		"NONE word=book",
		"CITY_NAME-B word=new",
		"",
	}, "\n")

	ds, err := ReadTriSequences(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadTriSequences: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("got %d tri-sequences, want 2", ds.Len())
	}
	first := ds.At(0)
	if first.Topic.Label != "FLIGHT" {
		t.Fatalf("topic label = %q, want FLIGHT", first.Topic.Label)
	}
	if len(first.Seq) != 3 {
		t.Fatalf("seq length = %d, want 3", len(first.Seq))
	}
	if ds.ElementCount() != 5 {
		t.Fatalf("element count = %d, want 5", ds.ElementCount())
	}
}

func TestReadTriSequencesRejectsEmptySequence(t *testing.T) {
	_, err := ReadTriSequences(strings.NewReader("FLIGHT foo\n\n"))
	if err == nil {
		t.Fatal("expected error for topic with no sequence events")
	}
}
