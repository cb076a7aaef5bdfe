package example

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// tokenize splits a line on whitespace, matching Utility.h's tokenize().
func tokenize(line string) []string {
	return strings.Fields(line)
}

// parseFeature splits a "name:value" token into its name and value,
// defaulting value to 1.0 when no ":value" suffix is present.
func parseFeature(tok string) (string, float64, error) {
	if i := strings.LastIndexByte(tok, ':'); i >= 0 {
		name, raw := tok[:i], tok[i+1:]
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			// Not every colon introduces a value suffix (feature names may
			// legitimately contain one, e.g. "time:14:30"); fall back to
			// treating the whole token as the name.
			return tok, 1.0, nil
		}
		return name, val, nil
	}
	return tok, 1.0, nil
}

func parseEventLine(lineno int, line string) (StringEvent, error) {
	toks := tokenize(line)
	if len(toks) == 0 {
		return StringEvent{}, errors.Errorf("line %d: empty event line", lineno)
	}

	ev := StringEvent{Label: toks[0], Value: 1.0}
	ev.Feats = make([]StringFeaturePair, 0, len(toks)-1)
	for _, tok := range toks[1:] {
		name, val, err := parseFeature(tok)
		if err != nil {
			return StringEvent{}, errors.Wrapf(err, "line %d: bad feature %q", lineno, tok)
		}
		ev.Feats = append(ev.Feats, StringFeaturePair{Name: name, Val: val})
	}
	return ev, nil
}

// ReadSequences parses the flat training-data format: blank-line
// separated records, one token-event per line, first whitespace token is
// the gold label, the rest are optionally-valued features.
func ReadSequences(r io.Reader) (*Dataset[StringSequence], error) {
	ds := NewDataset[StringSequence]()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var cur StringSequence
	lineno := 0
	flush := func() error {
		if len(cur) == 0 {
			return nil
		}
		ds.Append(cur)
		cur = nil
		return nil
	}

	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		ev, err := parseEventLine(lineno, line)
		if err != nil {
			return nil, err
		}
		cur = append(cur, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading sequence data")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return ds, nil
}

// ReadTriSequences parses the hierarchical training-data format: the
// first non-blank line of each record is the topic line (topic label then
// topic features), the remaining lines are the per-token sequence.
func ReadTriSequences(r io.Reader) (*Dataset[TriStringSequence], error) {
	ds := NewDataset[TriStringSequence]()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var cur TriStringSequence
	haveTopic := false
	lineno := 0

	flush := func() error {
		if !haveTopic {
			return nil
		}
		if len(cur.Seq) == 0 {
			return errors.Errorf("line %d: topic %q has no sequence events", lineno, cur.Topic.Label)
		}
		ds.Append(cur)
		cur = TriStringSequence{}
		haveTopic = false
		return nil
	}

	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if !haveTopic {
			ev, err := parseEventLine(lineno, line)
			if err != nil {
				return nil, err
			}
			cur.Topic = ev
			haveTopic = true
			continue
		}
		ev, err := parseEventLine(lineno, line)
		if err != nil {
			return nil, err
		}
		cur.Seq = append(cur.Seq, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading triangular sequence data")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return ds, nil
}

// FormatError wraps a parse failure with the originating file name, used by
// callers (the training driver) that read from a named file rather than an
// arbitrary io.Reader.
func FormatError(path string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "%s", fmt.Sprintf("parsing %s", path))
}
