package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fewshot/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_MissingIsCreatable(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "a", "b"))
	if !result.Passed {
		t.Fatalf("expected pass for creatable dir, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "will be created") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckReadableDirectory_NotExist(t *testing.T) {
	result := CheckReadableDirectory("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckReadableDirectory_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckReadableDirectory("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCacheSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "filelist.json")
	if result := CheckCacheSpace(path, 1); !result.Passed {
		t.Fatalf("expected pass with tiny minimum, got: %s", result.Detail)
	}
	if result := CheckCacheSpace(path, ^uint64(0)); result.Passed {
		t.Fatal("expected failure with impossible minimum")
	}
}

func TestCheckEligibleClasses(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteClassTree(t, root, 3, 2)

	if result := CheckEligibleClasses("classes", root, 3, 2); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result := CheckEligibleClasses("classes", root, 3, 4)
	if result.Passed {
		t.Fatal("expected failure when classes are too small")
	}
	if !strings.Contains(result.Detail, "0 of 3 classes") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteClassTree(t, cfg.Dataset.TrainDir, 3, 2)

	results := RunAll(cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected eval root and eval classes to fail, got %+v", failed)
	}
	for _, r := range failed {
		if !strings.HasPrefix(r.Name, "Eval") {
			t.Fatalf("unexpected failure: %+v", r)
		}
	}

	testsupport.WriteClassTree(t, cfg.Dataset.EvalDir, 2, 2)
	if failed := Failed(RunAll(cfg)); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got %+v", failed)
	}
}
