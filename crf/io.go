package crf

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/spokenlu/tricrf/param"
)

// writeBlock length-prefixes an opaque byte blob. Each param.Store is
// written into its own block rather than directly onto the shared writer
// because param.Load wraps its reader in a bufio.Reader that may read
// ahead past a store's logical end; framing each store gives that
// bufio.Reader a bounded byte range of its own to over-read within.
func writeBlock(w io.Writer, payload []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readBlock(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func saveStoreBlock(w io.Writer, s *param.Store) error {
	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		return err
	}
	return writeBlock(w, buf.Bytes())
}

func loadStoreBlock(r io.Reader) (*param.Store, error) {
	payload, err := readBlock(r)
	if err != nil {
		return nil, err
	}
	return param.Load(bytes.NewReader(payload))
}

// SaveTriModel persists a TriModel's topic store plus whichever
// sequence-level store(s) its Kind uses, one after another as
// independent length-prefixed param.Store blocks, followed by the
// ZYIndex mapping (if any).
func SaveTriModel(w io.Writer, m *TriModel) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.Kind)); err != nil {
		return errors.Wrap(err, "writing model kind")
	}
	if err := saveStoreBlock(w, m.Topic); err != nil {
		return errors.Wrap(err, "saving topic store")
	}

	switch m.Kind {
	case TriCRFB:
		if err := saveStoreBlock(w, m.SharedSeq); err != nil {
			return errors.Wrap(err, "saving shared sequence store")
		}
	default:
		if err := binary.Write(w, binary.LittleEndian, uint32(len(m.PerTopicSeq))); err != nil {
			return errors.Wrap(err, "writing per-topic store count")
		}
		for _, s := range m.PerTopicSeq {
			if err := saveStoreBlock(w, s); err != nil {
				return errors.Wrap(err, "saving per-topic store")
			}
		}
	}

	return saveZYIndex(w, m.ZYIndex)
}

func saveZYIndex(w io.Writer, idx map[int][]int) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(idx))); err != nil {
		return err
	}
	for z, states := range idx {
		if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(z), uint32(len(states))}); err != nil {
			return err
		}
		for _, y := range states {
			if err := binary.Write(w, binary.LittleEndian, uint32(y)); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadZYIndex(r io.Reader) (map[int][]int, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	idx := make(map[int][]int, n)
	for i := uint32(0); i < n; i++ {
		var head [2]uint32
		if err := binary.Read(r, binary.LittleEndian, &head); err != nil {
			return nil, err
		}
		z, count := int(head[0]), head[1]
		states := make([]int, count)
		for j := uint32(0); j < count; j++ {
			var y uint32
			if err := binary.Read(r, binary.LittleEndian, &y); err != nil {
				return nil, err
			}
			states[j] = int(y)
		}
		idx[z] = states
	}
	return idx, nil
}

// LoadTriModel reads back a TriModel written by SaveTriModel.
func LoadTriModel(r io.Reader) (*TriModel, error) {
	var kindRaw uint32
	if err := binary.Read(r, binary.LittleEndian, &kindRaw); err != nil {
		return nil, errors.Wrap(err, "reading model kind")
	}
	kind := ModelKind(kindRaw)

	topic, err := loadStoreBlock(r)
	if err != nil {
		return nil, errors.Wrap(err, "loading topic store")
	}

	m := &TriModel{Kind: kind, Topic: topic}

	switch kind {
	case TriCRFB:
		shared, err := loadStoreBlock(r)
		if err != nil {
			return nil, errors.Wrap(err, "loading shared sequence store")
		}
		m.SharedSeq = shared
	default:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, errors.Wrap(err, "reading per-topic store count")
		}
		m.PerTopicSeq = make([]*param.Store, n)
		for i := uint32(0); i < n; i++ {
			s, err := loadStoreBlock(r)
			if err != nil {
				return nil, errors.Wrapf(err, "loading per-topic store %d", i)
			}
			m.PerTopicSeq[i] = s
		}
	}

	idx, err := loadZYIndex(r)
	if err != nil {
		return nil, errors.Wrap(err, "loading topic-state index")
	}
	if len(idx) > 0 {
		m.ZYIndex = idx
	}
	return m, nil
}
