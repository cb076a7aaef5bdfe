package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/spokenlu/tricrf/config"
	"github.com/spokenlu/tricrf/crf"
	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/lbfgs"
	"github.com/spokenlu/tricrf/param"
	"github.com/spokenlu/tricrf/train"
)

func modelKind(s string) (crf.ModelKind, error) {
	switch s {
	case "MaxEnt":
		return crf.MaxEnt, nil
	case "CRF":
		return crf.LinearCRF, nil
	case "TriCRF1":
		return crf.TriCRFA, nil
	case "TriCRF2":
		return crf.TriCRFB, nil
	case "TriCRF3":
		return crf.TriCRFC, nil
	default:
		return 0, errors.Errorf("unknown model_type %q", s)
	}
}

func isTriangular(k crf.ModelKind) bool {
	return k == crf.TriCRFA || k == crf.TriCRFB || k == crf.TriCRFC
}

func regularizer(cfg config.Config) train.Regularizer {
	switch cfg.Estimation {
	case "LBFGS-L1":
		return train.Regularizer{Kind: train.RegL1, Sigma: cfg.L1Prior}
	default:
		return train.Regularizer{Kind: train.RegL2, Sigma: cfg.L2Prior}
	}
}

func run(cfg config.Config) error {
	kind, err := modelKind(cfg.ModelType)
	if err != nil {
		return runError{code: 1, err: err}
	}

	logPrefix := cfg.LogFile
	if logPrefix == "" {
		logPrefix = "tricrf"
	}
	logs, err := train.NewLoggers(logPrefix, cfg.LogMode)
	if err != nil {
		return runError{code: 1, err: errors.Wrap(err, "opening log files")}
	}
	defer logs.Close()

	driver := &train.Driver{
		Kind:     kind,
		MaxIter:  cfg.Iter,
		UsePL:    cfg.Initialize == "PL",
		InitIter: cfg.InitializeIter,
		Reg:      regularizer(cfg),
		Prune:    cfg.Prune,
		Logs:     logs,
	}

	doTrain := cfg.Mode == "train" || cfg.Mode == "both"
	doTest := cfg.Mode == "test" || cfg.Mode == "both"

	if isTriangular(kind) {
		return runTriangular(cfg, driver, logs, doTrain, doTest)
	}
	return runFlat(cfg, driver, logs, doTrain, doTest)
}

func runFlat(cfg config.Config, driver *train.Driver, logs *train.Loggers, doTrain, doTest bool) error {
	var store *param.Store

	if doTrain {
		f, err := os.Open(cfg.TrainFile)
		if err != nil {
			return runError{code: 1, err: errors.Wrapf(err, "opening train_file %s", cfg.TrainFile)}
		}
		data, err := example.ReadSequences(f)
		f.Close()
		if err != nil {
			return runError{code: 1, err: example.FormatError(cfg.TrainFile, err)}
		}

		var res train.Result
		var err2 error
		store, res, err2 = driver.TrainFlat(data)
		if err2 != nil {
			return runError{code: 1, err: err2}
		}
		if res.Status == lbfgs.Failed {
			logs.Logf(0, "optimizer failed after %d iterations, saving best-so-far parameters", res.Iterations)
			if cfg.ModelFile != "" {
				if err := saveFlatModel(cfg.ModelFile, store); err != nil {
					return runError{code: 2, err: err}
				}
			}
			return runError{code: 2, err: errors.New("optimizer failed to converge")}
		}
		logs.Logf(1, "AIC=%f (df=%d, nll=%f)", train.AIC(store.Size(), res.FinalNLL), store.Size(), res.FinalNLL)
		if cfg.ModelFile != "" {
			if err := saveFlatModel(cfg.ModelFile, store); err != nil {
				return runError{code: 1, err: err}
			}
		}
		if cfg.DevFile != "" {
			if err := reportFlatDevAccuracy(cfg.DevFile, store, logs); err != nil {
				return runError{code: 1, err: err}
			}
		}
	}

	if !doTest {
		return nil
	}

	if store == nil {
		var err error
		store, err = loadFlatModel(cfg.ModelFile)
		if err != nil {
			return runError{code: 1, err: err}
		}
	}

	f, err := os.Open(cfg.TestFile)
	if err != nil {
		return runError{code: 1, err: errors.Wrapf(err, "opening test_file %s", cfg.TestFile)}
	}
	data, err := example.ReadSequences(f)
	f.Close()
	if err != nil {
		return runError{code: 1, err: example.FormatError(cfg.TestFile, err)}
	}

	out, closeOut, err := openOutput(cfg.OutputFile)
	if err != nil {
		return runError{code: 1, err: err}
	}
	defer closeOut()

	for _, ss := range data.All() {
		seq := store.EncodeSequence(ss)
		lat := crf.Build(store, seq)
		lat.Run()
		path, _ := lat.Viterbi()
		for i, y := range path {
			if cfg.Confidence {
				fmt.Fprintf(out, "%s p=%f\n", store.StateName(y), lat.NodeMarginal(i, y))
			} else {
				fmt.Fprintln(out, store.StateName(y))
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runTriangular(cfg config.Config, driver *train.Driver, logs *train.Loggers, doTrain, doTest bool) error {
	var model *crf.TriModel

	if doTrain {
		f, err := os.Open(cfg.TrainFile)
		if err != nil {
			return runError{code: 1, err: errors.Wrapf(err, "opening train_file %s", cfg.TrainFile)}
		}
		data, err := example.ReadTriSequences(f)
		f.Close()
		if err != nil {
			return runError{code: 1, err: example.FormatError(cfg.TrainFile, err)}
		}

		var res train.Result
		model, res, err = driver.TrainTriangular(data)
		if err != nil {
			return runError{code: 1, err: err}
		}
		if res.Status == lbfgs.Failed {
			logs.Logf(0, "optimizer failed after %d iterations, saving best-so-far parameters", res.Iterations)
			if cfg.ModelFile != "" {
				if err := saveTriModel(cfg.ModelFile, model); err != nil {
					return runError{code: 2, err: err}
				}
			}
			return runError{code: 2, err: errors.New("optimizer failed to converge")}
		}
		logs.Logf(1, "AIC=%f (df=%d, nll=%f)", train.AIC(model.ParamCount(), res.FinalNLL), model.ParamCount(), res.FinalNLL)
		if cfg.ModelFile != "" {
			if err := saveTriModel(cfg.ModelFile, model); err != nil {
				return runError{code: 1, err: err}
			}
		}
		if cfg.DevFile != "" {
			if err := reportTriDevAccuracy(cfg.DevFile, model, logs); err != nil {
				return runError{code: 1, err: err}
			}
		}
	}

	if !doTest {
		return nil
	}

	if model == nil {
		var err error
		model, err = loadTriModel(cfg.ModelFile)
		if err != nil {
			return runError{code: 1, err: err}
		}
	}

	f, err := os.Open(cfg.TestFile)
	if err != nil {
		return runError{code: 1, err: errors.Wrapf(err, "opening test_file %s", cfg.TestFile)}
	}
	data, err := example.ReadTriSequences(f)
	f.Close()
	if err != nil {
		return runError{code: 1, err: example.FormatError(cfg.TestFile, err)}
	}

	out, closeOut, err := openOutput(cfg.OutputFile)
	if err != nil {
		return runError{code: 1, err: err}
	}
	defer closeOut()

	for _, ts := range data.All() {
		z, labels, score := model.Predict(ts.Topic, ts.Seq)
		topicName := model.Topic.StateName(z)
		if cfg.Confidence {
			fmt.Fprintf(out, "%s p=%f\n", topicName, score)
		} else {
			fmt.Fprintln(out, topicName)
		}
		seqStore, _ := model.SeqStoreForTopic(z)
		for _, y := range labels {
			fmt.Fprintln(out, seqStore.StateName(y))
		}
		fmt.Fprintln(out)
	}
	return nil
}

// reportFlatDevAccuracy decodes devFile against store and logs per-token
// label accuracy, a held-out check in the same spirit as hmmlib.HMM's
// log-likelihood reporting but scored against gold labels rather than
// the training objective.
func reportFlatDevAccuracy(devFile string, store *param.Store, logs *train.Loggers) error {
	f, err := os.Open(devFile)
	if err != nil {
		return errors.Wrapf(err, "opening dev_file %s", devFile)
	}
	data, err := example.ReadSequences(f)
	f.Close()
	if err != nil {
		return example.FormatError(devFile, err)
	}

	correct, total := 0, 0
	for _, ss := range data.All() {
		seq := store.EncodeSequence(ss)
		lat := crf.Build(store, seq)
		lat.Run()
		path, _ := lat.Viterbi()
		for i, y := range path {
			total++
			if store.StateName(y) == ss[i].Label {
				correct++
			}
		}
	}
	acc := 0.0
	if total > 0 {
		acc = float64(correct) / float64(total)
	}
	logs.Logf(1, "dev accuracy: %d/%d = %f", correct, total, acc)
	return nil
}

// reportTriDevAccuracy is reportFlatDevAccuracy's triangular counterpart:
// it scores both the topic decision and the per-token sequence labels
// predicted for that topic.
func reportTriDevAccuracy(devFile string, model *crf.TriModel, logs *train.Loggers) error {
	f, err := os.Open(devFile)
	if err != nil {
		return errors.Wrapf(err, "opening dev_file %s", devFile)
	}
	data, err := example.ReadTriSequences(f)
	f.Close()
	if err != nil {
		return example.FormatError(devFile, err)
	}

	topicCorrect, topicTotal := 0, 0
	labelCorrect, labelTotal := 0, 0
	for _, ts := range data.All() {
		z, labels, _ := model.Predict(ts.Topic, ts.Seq)
		topicTotal++
		if model.Topic.StateName(z) == ts.Topic.Label {
			topicCorrect++
		}
		seqStore, ok := model.SeqStoreForTopic(z)
		if !ok {
			continue
		}
		for i, y := range labels {
			labelTotal++
			if i < len(ts.Seq) && seqStore.StateName(y) == ts.Seq[i].Label {
				labelCorrect++
			}
		}
	}
	topicAcc, labelAcc := 0.0, 0.0
	if topicTotal > 0 {
		topicAcc = float64(topicCorrect) / float64(topicTotal)
	}
	if labelTotal > 0 {
		labelAcc = float64(labelCorrect) / float64(labelTotal)
	}
	logs.Logf(1, "dev topic accuracy: %d/%d = %f", topicCorrect, topicTotal, topicAcc)
	logs.Logf(1, "dev label accuracy: %d/%d = %f", labelCorrect, labelTotal, labelAcc)
	return nil
}

func openOutput(path string) (*bufio.Writer, func() error, error) {
	if path == "" || path == "-" {
		w := bufio.NewWriter(os.Stdout)
		return w, w.Flush, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "creating output_file %s", path)
	}
	w := bufio.NewWriter(f)
	return w, func() error {
		if err := w.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}

func saveFlatModel(path string, store *param.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating model_file %s", path)
	}
	defer f.Close()
	return store.Save(f)
}

func loadFlatModel(path string) (*param.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening model_file %s", path)
	}
	defer f.Close()
	return param.Load(f)
}

func saveTriModel(path string, m *crf.TriModel) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating model_file %s", path)
	}
	defer f.Close()
	return crf.SaveTriModel(f, m)
}

func loadTriModel(path string) (*crf.TriModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening model_file %s", path)
	}
	defer f.Close()
	return crf.LoadTriModel(f)
}
