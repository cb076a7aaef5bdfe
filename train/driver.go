package train

import (
	"github.com/schollz/progressbar"

	"github.com/spokenlu/tricrf/crf"
	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/lbfgs"
	"github.com/spokenlu/tricrf/param"
)

// Result reports how one optimization run ended.
type Result struct {
	Iterations int
	FinalNLL   float64
	Status     lbfgs.Status
}

// Optimize runs the full forward-backward L-BFGS loop against store until
// convergence, failure, or maxIter outer steps, whichever comes first.
// store must already be Finalize'd. kind selects MaxEnt's independent-event
// scoring; any other kind runs the full linear-chain CRF.
func Optimize(store *param.Store, examples []SeqExample, maxIter int, reg Regularizer, kind crf.ModelKind) Result {
	return OptimizeLogged(store, examples, maxIter, reg, kind, nil)
}

// OptimizeLogged is Optimize with an optional Loggers for per-iteration
// progress messages, matching hmm.Fit's "Beginning ForwardBackward..."
// style trace gated by log_mode.
func OptimizeLogged(store *param.Store, examples []SeqExample, maxIter int, reg Regularizer, kind crf.ModelKind, logs *Loggers) Result {
	assembler := NewGradientAssembler(store, kind)
	opt := lbfgs.New(store.Size())
	if reg.Kind == RegL1 {
		opt.Orthant = true
		opt.C = L1C(reg.Sigma)
	}

	logs.Logf(1, "optimizing %d parameters over %d examples", store.Size(), len(examples))

	bar := progressbar.New(maxIter)
	status := lbfgs.Continue
	var nll float64
	iter := 0
	for ; iter < maxIter && status == lbfgs.Continue; iter++ {
		nll = assembler.Evaluate(examples)
		nll += reg.Penalty(store.Weight)
		reg.AddGradient(store.Weight, store.Gradient)
		status = opt.Step(store.Weight, nll, store.Gradient)
		logs.Logf(2, "iter %d nll=%f status=%s", iter, nll, status)
		_ = bar.Add(1)
	}
	logs.Logf(1, "optimization finished after %d iterations, status=%s, nll=%f", opt.Iterations(), status, nll)
	return Result{Iterations: opt.Iterations(), FinalNLL: nll, Status: status}
}

// optimizeJoint drives one L-BFGS loop against a triangular model's single
// flattened weight vector, using a JointAssembler so the topic store and
// every sequence store it owns are optimized under one joint partition
// function instead of independently.
func (d *Driver) optimizeJoint(m *crf.TriModel, examples []TriExample) Result {
	x, g := m.Flatten()
	assembler := NewJointAssembler(m)
	opt := lbfgs.New(len(x))
	if d.Reg.Kind == RegL1 {
		opt.Orthant = true
		opt.C = L1C(d.Reg.Sigma)
	}

	d.Logs.Logf(1, "optimizing %d jointly-normalized parameters over %d examples", len(x), len(examples))

	bar := progressbar.New(d.MaxIter)
	status := lbfgs.Continue
	var nll float64
	iter := 0
	for ; iter < d.MaxIter && status == lbfgs.Continue; iter++ {
		nll = assembler.Evaluate(examples)
		nll += d.Reg.Penalty(x)
		d.Reg.AddGradient(x, g)
		status = opt.Step(x, nll, g)
		d.Logs.Logf(2, "iter %d nll=%f status=%s", iter, nll, status)
		_ = bar.Add(1)
	}
	d.Logs.Logf(1, "joint optimization finished after %d iterations, status=%s, nll=%f", opt.Iterations(), status, nll)
	return Result{Iterations: opt.Iterations(), FinalNLL: nll, Status: status}
}

// Driver orchestrates one training run end to end: interning training
// data into a parameter store (or stores, for triangular models),
// optionally running the pseudo-likelihood warm-start, then Optimize.
// It plays the role of hmmlib.HMM's Fit method generalized from a single
// fixed-shape model to five model kinds.
type Driver struct {
	Kind    crf.ModelKind
	MaxIter int

	// UsePL and InitIter control the pseudo-likelihood warm-start phase
	// (configuration keys initialize=PL, initialize_iter). Warm-starting
	// stays a per-store heuristic initialization applied before the
	// stores are coupled into one joint optimization, not part of the
	// joint objective itself.
	UsePL    bool
	InitIter int

	Reg Regularizer

	// Prune, if > 0, drops observation features whose empirical
	// (state, feature) count fell below this threshold before
	// optimization, matching MaxEnt.h's m_prune knob.
	Prune float64

	// Logs, if non-nil, receives progress messages during training.
	Logs *Loggers
}

func (d *Driver) prune(store *param.Store) error {
	if d.Prune <= 0 {
		return nil
	}
	return store.PruneFeatures(d.Prune)
}

// TrainFlat trains a MaxEnt or plain linear-chain CRF store from flat
// training data and returns the finalized, optimized store. MaxEnt
// records are interned without inter-token transitions, so each event
// is scored independently with no forward-backward coupling.
func (d *Driver) TrainFlat(data *example.Dataset[example.StringSequence]) (*param.Store, Result, error) {
	store := param.New()
	examples := make([]SeqExample, 0, data.Len())
	for _, ss := range data.All() {
		var seq example.Sequence
		var err error
		if d.Kind == crf.MaxEnt {
			seq, err = store.InternIndependentSequence(ss)
		} else {
			seq, err = store.InternSequence(ss)
		}
		if err != nil {
			return nil, Result{}, err
		}
		examples = append(examples, SeqExample{Seq: seq})
	}
	if err := store.Finalize(); err != nil {
		return nil, Result{}, err
	}
	if err := d.prune(store); err != nil {
		return nil, Result{}, err
	}

	d.Logs.Logf(1, "training flat model: %d examples", data.Len())
	if d.UsePL {
		PseudoLikelihoodWarmStart(store, examples, d.InitIter, d.Reg, d.Kind == crf.MaxEnt)
	}
	res := OptimizeLogged(store, examples, d.MaxIter, d.Reg, d.Kind, d.Logs)
	return store, res, nil
}

// AIC returns the Akaike information criterion for a store of df free
// parameters trained to finalNLL nats, mirroring hmmlib.HMM.AIC's
// 2*degrees_of_freedom - 2*log-likelihood, generalized from the HMM's
// fixed-shape parameter count to a sparse Store's Size().
func AIC(df int, finalNLL float64) float64 {
	return 2*float64(df) + 2*finalNLL
}

// TrainTriangular interns the topic store and whichever sequence store(s)
// d.Kind requires, optionally pseudo-likelihood warm-starts each store,
// then flattens the whole model into one parameter vector and drives a
// single joint optimization over it, so the topic prior and every
// per-topic sequence CRF are trained under one joint partition function
// rather than as independent models.
func (d *Driver) TrainTriangular(data *example.Dataset[example.TriStringSequence]) (*crf.TriModel, Result, error) {
	topicStore := param.New()
	triExamples := make([]TriExample, 0, data.Len())
	for _, ts := range data.All() {
		seq, err := topicStore.InternSequence(example.StringSequence{ts.Topic})
		if err != nil {
			return nil, Result{}, err
		}
		triExamples = append(triExamples, TriExample{
			TopicEvent: seq[0],
			Seq:        ts.Seq,
			GoldTopic:  seq[0].Label,
		})
	}
	if err := topicStore.Finalize(); err != nil {
		return nil, Result{}, err
	}
	if err := d.prune(topicStore); err != nil {
		return nil, Result{}, err
	}
	d.Logs.Logf(1, "building topic model: %d topics", topicStore.NumStates())

	m := &crf.TriModel{Kind: d.Kind, Topic: topicStore}

	var err error
	switch d.Kind {
	case crf.TriCRFB:
		m, err = d.buildSharedSequence(topicStore, data, m)
	default:
		m, err = d.buildPerTopicSequence(topicStore, data, m)
	}
	if err != nil {
		return nil, Result{}, err
	}

	if d.UsePL {
		topicPL := make([]SeqExample, len(triExamples))
		for i, ex := range triExamples {
			topicPL[i] = SeqExample{Seq: example.Sequence{ex.TopicEvent}}
		}
		PseudoLikelihoodWarmStart(topicStore, topicPL, d.InitIter, d.Reg, false)
	}

	res := d.optimizeJoint(m, triExamples)
	return m, res, nil
}

// buildSharedSequence interns every record's token sequence into one
// shared sequence store (TriCRFB) and, if d.UsePL, warm-starts it against
// its own topic-restricted pseudo-likelihood objective before the joint
// optimization couples it to the topic store.
func (d *Driver) buildSharedSequence(topicStore *param.Store, data *example.Dataset[example.TriStringSequence], m *crf.TriModel) (*crf.TriModel, error) {
	shared := param.New()
	interned := make([]example.TriSequence, 0, data.Len())
	seqExamples := make([]SeqExample, 0, data.Len())

	for _, ts := range data.All() {
		z, ok := topicStore.FindState(ts.Topic.Label)
		if !ok {
			z = param.DefaultStateID
		}
		seq, err := shared.InternSequence(ts.Seq)
		if err != nil {
			return nil, err
		}
		interned = append(interned, example.TriSequence{Topic: example.Event{Label: z}, Seq: seq})
		seqExamples = append(seqExamples, SeqExample{Seq: seq})
	}
	if err := shared.Finalize(); err != nil {
		return nil, err
	}
	if err := d.prune(shared); err != nil {
		return nil, err
	}

	zyIndex := crf.BuildZYIndex(interned)
	for i := range seqExamples {
		seqExamples[i].States = zyIndex[interned[i].Topic.Label]
	}

	if d.UsePL {
		PseudoLikelihoodWarmStart(shared, seqExamples, d.InitIter, d.Reg, false)
	}

	m.SharedSeq = shared
	m.ZYIndex = zyIndex
	d.Logs.Logf(1, "building shared sequence model: %d parameters", shared.Size())
	return m, nil
}

// buildPerTopicSequence interns every record's token sequence into the
// sequence store owned by its gold topic (TriCRFA/TriCRFC) and, if
// d.UsePL, warm-starts each store independently before the joint
// optimization couples all of them to the topic store.
func (d *Driver) buildPerTopicSequence(topicStore *param.Store, data *example.Dataset[example.TriStringSequence], m *crf.TriModel) (*crf.TriModel, error) {
	n := topicStore.NumStates()
	perTopic := make([]*param.Store, n)
	grouped := make([][]SeqExample, n)
	interned := make([]example.TriSequence, 0, data.Len())

	for _, ts := range data.All() {
		z, ok := topicStore.FindState(ts.Topic.Label)
		if !ok {
			z = param.DefaultStateID
		}
		if perTopic[z] == nil {
			perTopic[z] = param.New()
		}
		seq, err := perTopic[z].InternSequence(ts.Seq)
		if err != nil {
			return nil, err
		}
		grouped[z] = append(grouped[z], SeqExample{Seq: seq})
		interned = append(interned, example.TriSequence{Topic: example.Event{Label: z}, Seq: seq})
	}

	for z := range perTopic {
		if perTopic[z] == nil {
			perTopic[z] = param.New()
		}
		if err := perTopic[z].Finalize(); err != nil {
			return nil, err
		}
		if err := d.prune(perTopic[z]); err != nil {
			return nil, err
		}
	}

	var zyIndex map[int][]int
	if d.Kind == crf.TriCRFC {
		zyIndex = crf.BuildZYIndex(interned)
		for z := range grouped {
			states := zyIndex[z]
			for i := range grouped[z] {
				grouped[z][i].States = states
			}
		}
	}

	if d.UsePL {
		for z, exs := range grouped {
			if len(exs) == 0 {
				continue
			}
			PseudoLikelihoodWarmStart(perTopic[z], exs, d.InitIter, d.Reg, false)
		}
	}

	m.PerTopicSeq = perTopic
	if d.Kind == crf.TriCRFC {
		m.ZYIndex = zyIndex
	}
	d.Logs.Logf(1, "building %d per-topic sequence models", n)
	return m, nil
}
