package param

import (
	"bufio"
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// magic identifies the binary model-file format: a fixed length-prefixed
// layout, chosen over gob+gzip so a non-Go reader can parse a saved model
// deterministically.
const magic uint32 = 0x54435246 // "TCRF"

const formatVersion uint32 = 1

func writeString(w *bufio.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeFloats(w *bufio.Writer, xs []float64) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(xs))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, xs)
}

func readFloats(r *bufio.Reader) ([]float64, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	xs := make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, xs); err != nil {
		return nil, err
	}
	return xs, nil
}

// Save writes the store's dictionaries and weight vector to w in the
// length-prefixed binary layout: magic, version, state names, feature
// names, weight vector, observation index, transition index, tied-mode
// flag. Gradient and Count are not persisted; they are training-only
// scratch space rebuilt fresh by the next training run.
func (s *Store) Save(w io.Writer) error {
	if !s.finalized {
		return errors.New("param: Save requires a finalized store")
	}
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, magic); err != nil {
		return errors.Wrap(err, "writing magic")
	}
	if err := binary.Write(bw, binary.LittleEndian, formatVersion); err != nil {
		return errors.Wrap(err, "writing version")
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(s.stateVec))); err != nil {
		return errors.Wrap(err, "writing state count")
	}
	for _, name := range s.stateVec {
		if err := writeString(bw, name); err != nil {
			return errors.Wrap(err, "writing state name")
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(s.featureVec))); err != nil {
		return errors.Wrap(err, "writing feature count")
	}
	for _, name := range s.featureVec {
		if err := writeString(bw, name); err != nil {
			return errors.Wrap(err, "writing feature name")
		}
	}

	if err := writeFloats(bw, s.Weight); err != nil {
		return errors.Wrap(err, "writing weights")
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(s.obsSeen))); err != nil {
		return errors.Wrap(err, "writing obs index count")
	}
	for key, widx := range s.obsSeen {
		rec := [3]uint32{uint32(key[0]), uint32(key[1]), uint32(widx)}
		if err := binary.Write(bw, binary.LittleEndian, rec); err != nil {
			return errors.Wrap(err, "writing obs index entry")
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(s.transSeen))); err != nil {
		return errors.Wrap(err, "writing trans index count")
	}
	for key, widx := range s.transSeen {
		rec := [3]int64{int64(key[0]), int64(key[1]), int64(widx)}
		if err := binary.Write(bw, binary.LittleEndian, rec); err != nil {
			return errors.Wrap(err, "writing trans index entry")
		}
	}

	var tied uint8
	if s.HaveTied {
		tied = 1
	}
	if err := binary.Write(bw, binary.LittleEndian, tied); err != nil {
		return errors.Wrap(err, "writing tied flag")
	}
	if s.HaveTied {
		if err := binary.Write(bw, binary.LittleEndian, s.TiedThreshold); err != nil {
			return errors.Wrap(err, "writing tied threshold")
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(s.TiedWIdx)); err != nil {
			return errors.Wrap(err, "writing tied widx")
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(s.defaultEdgeWIdx)); err != nil {
		return errors.Wrap(err, "writing default edge widx")
	}

	return bw.Flush()
}

// Load reads a store previously written by Save. The returned store is
// finalized and ready for scoring; it is not writable via Record/RecordTrans.
func Load(r io.Reader) (*Store, error) {
	br := bufio.NewReader(r)

	var got uint32
	if err := binary.Read(br, binary.LittleEndian, &got); err != nil {
		return nil, errors.Wrap(err, "reading magic")
	}
	if got != magic {
		return nil, errors.Errorf("param: bad magic %#x, not a model file", got)
	}
	var version uint32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, errors.Wrap(err, "reading version")
	}
	if version != formatVersion {
		return nil, errors.Errorf("param: unsupported model format version %d", version)
	}

	s := &Store{
		featureMap: make(map[string]int),
		stateMap:   make(map[string]int),
		obsSeen:    make(map[[2]int]int),
		transSeen:  make(map[[2]int]int),
		transCount: make(map[[2]int]float64),
	}

	var nStates uint32
	if err := binary.Read(br, binary.LittleEndian, &nStates); err != nil {
		return nil, errors.Wrap(err, "reading state count")
	}
	for i := uint32(0); i < nStates; i++ {
		name, err := readString(br)
		if err != nil {
			return nil, errors.Wrap(err, "reading state name")
		}
		s.stateMap[name] = len(s.stateVec)
		s.stateVec = append(s.stateVec, name)
	}

	var nFeats uint32
	if err := binary.Read(br, binary.LittleEndian, &nFeats); err != nil {
		return nil, errors.Wrap(err, "reading feature count")
	}
	for i := uint32(0); i < nFeats; i++ {
		name, err := readString(br)
		if err != nil {
			return nil, errors.Wrap(err, "reading feature name")
		}
		s.featureMap[name] = len(s.featureVec)
		s.featureVec = append(s.featureVec, name)
	}

	weight, err := readFloats(br)
	if err != nil {
		return nil, errors.Wrap(err, "reading weights")
	}
	s.Weight = weight
	s.Gradient = make([]float64, len(weight))
	s.Count = make([]float64, len(weight))

	var nObs uint32
	if err := binary.Read(br, binary.LittleEndian, &nObs); err != nil {
		return nil, errors.Wrap(err, "reading obs index count")
	}
	byState := make(map[int][]ObsParam)
	for i := uint32(0); i < nObs; i++ {
		var rec [3]uint32
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, errors.Wrap(err, "reading obs index entry")
		}
		y, fid, widx := int(rec[0]), int(rec[1]), int(rec[2])
		s.obsSeen[[2]int{y, fid}] = widx
		byState[y] = append(byState[y], ObsParam{FID: fid, WIdx: widx})
	}
	s.ParamIndex = make([][]ObsParam, len(s.stateVec))
	for y, list := range byState {
		sort.Slice(list, func(i, j int) bool { return list[i].FID < list[j].FID })
		s.ParamIndex[y] = list
	}

	var nTrans uint32
	if err := binary.Read(br, binary.LittleEndian, &nTrans); err != nil {
		return nil, errors.Wrap(err, "reading trans index count")
	}
	s.TransIndex = make(map[int][]StateParam)
	for i := uint32(0); i < nTrans; i++ {
		var rec [3]int64
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, errors.Wrap(err, "reading trans index entry")
		}
		y1, y2, widx := int(rec[0]), int(rec[1]), int(rec[2])
		s.transSeen[[2]int{y1, y2}] = widx
		s.transCount[[2]int{y1, y2}] = 1
		s.TransIndex[y1] = append(s.TransIndex[y1], StateParam{Y1: y1, Y2: y2, WIdx: widx})
	}

	var tied uint8
	if err := binary.Read(br, binary.LittleEndian, &tied); err != nil {
		return nil, errors.Wrap(err, "reading tied flag")
	}
	if tied == 1 {
		s.HaveTied = true
		if err := binary.Read(br, binary.LittleEndian, &s.TiedThreshold); err != nil {
			return nil, errors.Wrap(err, "reading tied threshold")
		}
		var widx uint32
		if err := binary.Read(br, binary.LittleEndian, &widx); err != nil {
			return nil, errors.Wrap(err, "reading tied widx")
		}
		s.TiedWIdx = int(widx)
	}

	var defWIdx uint32
	if err := binary.Read(br, binary.LittleEndian, &defWIdx); err != nil {
		return nil, errors.Wrap(err, "reading default edge widx")
	}
	s.defaultEdgeWIdx = int(defWIdx)
	s.haveDefaultEdge = true
	s.finalized = true

	return s, nil
}
