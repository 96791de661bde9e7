package config

import (
	"path/filepath"
	"testing"

	"github.com/rkhandel/distgraph/internal/partition"
)

func TestValidateDefaultsPolicyAndCombiner(t *testing.T) {
	cfg := &ClusterConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Policy != "random" {
		t.Fatalf("expected default policy random, got %s", cfg.Policy)
	}
	if cfg.Combiner != "overwrite" {
		t.Fatalf("expected default combiner overwrite, got %s", cfg.Combiner)
	}
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	cfg := &ClusterConfig{Policy: "bogus"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestPolicyKindResolvesAllFour(t *testing.T) {
	cases := map[string]partition.Kind{
		"random":          partition.Random,
		"greedy":          partition.Greedy,
		"greedy+topology": partition.GreedyTopology,
		"hdrf":            partition.HDRF,
	}
	for name, want := range cases {
		cfg := &ClusterConfig{Policy: name}
		got, err := cfg.PolicyKind()
		if err != nil {
			t.Fatalf("PolicyKind(%s): %v", name, err)
		}
		if got != want {
			t.Fatalf("PolicyKind(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.yaml")

	want := &ClusterConfig{Wrap: 16, Dims: 2, Policy: "hdrf", UseHash: true, Combiner: "max"}
	if err := Save(want, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Wrap != want.Wrap || got.Dims != want.Dims || got.Policy != want.Policy || got.UseHash != want.UseHash || got.Combiner != want.Combiner {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error loading missing file")
	}
}
