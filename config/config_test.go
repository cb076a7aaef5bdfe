package config

import (
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	data := strings.Join([]string{
		"# a comment",
		"model_type = TriCRF2",
		"mode = train",
		"train_file = data/train.txt",
		"estimation = LBFGS-L1",
		"l1_prior = 1.5",
		"iter = 50",
		"initialize = PL",
		"initialize_iter = 10",
		"confidence = true",
		"",
	}, "\n")

	cfg, err := Parse(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ModelType != "TriCRF2" {
		t.Fatalf("ModelType = %q, want TriCRF2", cfg.ModelType)
	}
	if cfg.Mode != "train" {
		t.Fatalf("Mode = %q, want train", cfg.Mode)
	}
	if cfg.L1Prior != 1.5 {
		t.Fatalf("L1Prior = %v, want 1.5", cfg.L1Prior)
	}
	if cfg.Iter != 50 {
		t.Fatalf("Iter = %v, want 50", cfg.Iter)
	}
	if !cfg.Confidence {
		t.Fatal("Confidence = false, want true")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("model_type = MaxEnt\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mode != "both" {
		t.Fatalf("Mode default = %q, want both", cfg.Mode)
	}
	if cfg.L2Prior != 2.0 {
		t.Fatalf("L2Prior default = %v, want 2.0", cfg.L2Prior)
	}
	if cfg.Iter != 100 {
		t.Fatalf("Iter default = %v, want 100", cfg.Iter)
	}
}

func TestParseDevFileAndPrune(t *testing.T) {
	data := strings.Join([]string{
		"model_type = CRF",
		"train_file = data/train.txt",
		"dev_file = data/dev.txt",
		"prune = 3",
		"",
	}, "\n")
	cfg, err := Parse(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DevFile != "data/dev.txt" {
		t.Fatalf("DevFile = %q, want data/dev.txt", cfg.DevFile)
	}
	if cfg.Prune != 3 {
		t.Fatalf("Prune = %v, want 3", cfg.Prune)
	}
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("not_a_kv_pair\n"))
	if err == nil {
		t.Fatal("expected error for line without '='")
	}
}
