package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fewshot/internal/services"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "2-way, 1-shot, 1 query, meta batch 2 (8 images per batch)")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestClassesCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"classes"}, env.configPath)
	if err != nil {
		t.Fatalf("classes: %v", err)
	}
	requireContains(t, out, "Eligible")
	requireContains(t, out, env.cfg.Dataset.TrainDir)
	requireContains(t, out, env.cfg.Dataset.EvalDir)
	requireContains(t, out, "at least 2 files")

	if _, _, err := runCLI(t, []string{"classes", "--mode", "bogus"}, env.configPath); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for bad mode, got %v", err)
	}
}

func TestEpisodesBuildWritesAndReusesCache(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"episodes", "build", "--seed", "3"}, env.configPath)
	if err != nil {
		t.Fatalf("episodes build: %v", err)
	}
	requireContains(t, out, "Source: sampled")
	requireContains(t, out, "Paths: 16")
	requireContains(t, out, "Cache written: "+env.cfg.Cache.Path)

	out, _, err = runCLI(t, []string{"episodes", "build"}, env.configPath)
	if err != nil {
		t.Fatalf("episodes build (cached): %v", err)
	}
	requireContains(t, out, "Source: cache")

	out, _, err = runCLI(t, []string{"cache", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Entries: 16")
	requireContains(t, out, "Episodes: 4")

	out, _, err = runCLI(t, []string{"cache", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Removed")

	out, _, err = runCLI(t, []string{"cache", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats after clear: %v", err)
	}
	requireContains(t, out, "Cache file does not exist")
}

func TestEpisodesBuildEvalLeavesCacheAlone(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"episodes", "build", "--mode", "eval"}, env.configPath)
	if err != nil {
		t.Fatalf("episodes build eval: %v", err)
	}
	requireContains(t, out, "Paths: 8")
	if _, err := os.Stat(env.cfg.Cache.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("eval build must not write the cache, stat err=%v", err)
	}
}

func TestBatchesAndRunsList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"batches", "--limit", "1", "--seed", "11"}, env.configPath)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	requireContains(t, out, "2×4×48")
	requireContains(t, out, "2×4×2")
	requireContains(t, out, "Run ")
	requireContains(t, out, "1 batches")

	out, _, err = runCLI(t, []string{"batches", "--mode", "eval"}, env.configPath)
	if err != nil {
		t.Fatalf("batches eval: %v", err)
	}
	requireContains(t, out, "1 batches (2 episodes, sampled)")

	out, _, err = runCLI(t, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "eval")
	requireContains(t, out, "2-way 1+1")
}

func TestRunsListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}

func TestBatchesFailsOnMissingDataset(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.RemoveAll(env.cfg.Dataset.EvalDir); err != nil {
		t.Fatalf("remove eval dir: %v", err)
	}
	_, _, err := runCLI(t, []string{"batches"}, env.configPath)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO for missing dataset root, got %v", err)
	}
}

func TestCheckCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "Train classes")
	requireContains(t, out, "3 of 3 classes have >= 2 files")

	if err := os.RemoveAll(env.cfg.Dataset.EvalDir); err != nil {
		t.Fatalf("remove eval root: %v", err)
	}
	out, _, err = runCLI(t, []string{"check"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	requireContains(t, out, "FAIL")
}
