// Package example holds the data carriers that flow from the training-data
// reader through the parameter store and into the inference engine: Event,
// Sequence, TriSequence, and the Dataset that collects them.
package example

// FeaturePair is one (feature id, value) observation on an Event, after
// feature names have been interned into ids by the parameter store.
type FeaturePair struct {
	FID int
	Val float64
}

// StringFeaturePair is a (feature name, value) observation, used before
// names are interned and by the string-feature triangular models.
type StringFeaturePair struct {
	Name string
	Val  float64
}

// Event is one token position: a gold state id, a default feature value
// (usually 1), and the sparse list of features that fired at this position.
type Event struct {
	Label int
	Value float64
	Feats []FeaturePair
}

// StringEvent is an Event whose features have not yet been interned.
type StringEvent struct {
	Label string
	Value float64
	Feats []StringFeaturePair
}

// Sequence is an ordered, non-empty list of Events.
type Sequence []Event

// StringSequence is an ordered, non-empty list of StringEvents.
type StringSequence []StringEvent

// TriSequence pairs a topic-level Event with the per-token Sequence it
// governs. Topic features live in their own parameter namespace and never
// collide with per-token features.
type TriSequence struct {
	Topic Event
	Seq   Sequence
}

// TriStringSequence is the string-feature analogue of TriSequence, used by
// every triangular model kind before interning.
type TriStringSequence struct {
	Topic StringEvent
	Seq   StringSequence
}

// Len reports the number of token positions in the sequence.
func (s Sequence) Len() int { return len(s) }

// Len reports the number of token positions in the sequence.
func (s StringSequence) Len() int { return len(s) }

// Len reports the number of token positions governed by the topic.
func (t TriSequence) Len() int { return len(t.Seq) }

// Len reports the number of token positions governed by the topic.
func (t TriStringSequence) Len() int { return len(t.Seq) }
