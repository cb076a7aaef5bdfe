// Package config reads the "key = value" configuration file format
// described below and layers environment-variable overrides on top,
// grounded on original_source/src/Utility.h's Configurator class and the
// text2phenotype-ctakes-go pack's envconfig-based override convention.
package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config holds every recognized configuration key. Struct tags name
// the environment-variable override envconfig applies (prefix TRICRF_),
// e.g. TRICRF_MODEL_TYPE overrides model_type.
type Config struct {
	ModelType string `envconfig:"MODEL_TYPE"` // MaxEnt | CRF | TriCRF1 | TriCRF2 | TriCRF3
	Mode      string `envconfig:"MODE"`       // train | test | both

	TrainFile  string `envconfig:"TRAIN_FILE"`
	DevFile    string `envconfig:"DEV_FILE"`
	TestFile   string `envconfig:"TEST_FILE"`
	ModelFile  string `envconfig:"MODEL_FILE"`
	OutputFile string `envconfig:"OUTPUT_FILE"`
	LogFile    string `envconfig:"LOG_FILE"`

	Estimation string  `envconfig:"ESTIMATION"` // LBFGS-L1 | LBFGS-L2
	L1Prior    float64 `envconfig:"L1_PRIOR"`
	L2Prior    float64 `envconfig:"L2_PRIOR"`
	Iter       int     `envconfig:"ITER"`

	Initialize     string `envconfig:"INITIALIZE"` // "" | PL
	InitializeIter int    `envconfig:"INITIALIZE_ITER"`

	Confidence bool   `envconfig:"CONFIDENCE"`
	LogMode    int    `envconfig:"LOG_MODE"`
	TiedK      float64 `envconfig:"TIED_K"` // parsed only; the CLI and training driver do not apply tied-potential mode
	Prune      float64 `envconfig:"PRUNE"`  // 0 disables feature pruning
}

// defaults matches the original's sensible-default behavior for keys a
// configuration file may omit.
func defaults() Config {
	return Config{
		Mode:       "both",
		Estimation: "LBFGS-L2",
		L2Prior:    2.0,
		Iter:       100,
		LogMode:    1,
	}
}

// Parse reads the "key = value" format from r: blank lines and lines
// starting with # are ignored, everything else must contain an '='; the
// first '=' separates a trimmed key from a trimmed value (which may itself
// contain further '=' characters).
func Parse(r io.Reader) (Config, error) {
	cfg := defaults()
	raw := make(map[string]string)

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i < 0 {
			return cfg, errors.Errorf("config line %d: missing '=': %q", lineno, line)
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		raw[key] = val
	}
	if err := scanner.Err(); err != nil {
		return cfg, errors.Wrap(err, "reading configuration")
	}

	if err := applyRaw(&cfg, raw); err != nil {
		return cfg, err
	}
	if err := envconfig.Process("tricrf", &cfg); err != nil {
		return cfg, errors.Wrap(err, "applying environment overrides")
	}
	return cfg, nil
}

// Load opens path and parses it as a configuration file.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "opening config %s", path)
	}
	defer f.Close()
	return Parse(f)
}

func applyRaw(cfg *Config, raw map[string]string) error {
	getStr := func(key string, dst *string) {
		if v, ok := raw[key]; ok {
			*dst = v
		}
	}
	getFloat := func(key string, dst *float64) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "config key %s", key)
		}
		*dst = f
		return nil
	}
	getInt := func(key string, dst *int) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "config key %s", key)
		}
		*dst = n
		return nil
	}
	getBool := func(key string, dst *bool) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "config key %s", key)
		}
		*dst = b
		return nil
	}

	getStr("model_type", &cfg.ModelType)
	getStr("mode", &cfg.Mode)
	getStr("train_file", &cfg.TrainFile)
	getStr("dev_file", &cfg.DevFile)
	getStr("test_file", &cfg.TestFile)
	getStr("model_file", &cfg.ModelFile)
	getStr("output_file", &cfg.OutputFile)
	getStr("log_file", &cfg.LogFile)
	getStr("estimation", &cfg.Estimation)
	getStr("initialize", &cfg.Initialize)

	for key, dst := range map[string]*float64{
		"l1_prior": &cfg.L1Prior,
		"l2_prior": &cfg.L2Prior,
		"tied_k":   &cfg.TiedK,
		"prune":    &cfg.Prune,
	} {
		if err := getFloat(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*int{
		"iter":            &cfg.Iter,
		"initialize_iter": &cfg.InitializeIter,
		"log_mode":        &cfg.LogMode,
	} {
		if err := getInt(key, dst); err != nil {
			return err
		}
	}
	if err := getBool("confidence", &cfg.Confidence); err != nil {
		return err
	}
	return nil
}
