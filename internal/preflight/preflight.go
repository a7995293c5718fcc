package preflight

import (
	"fmt"

	"fewshot/internal/classindex"
	"fewshot/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Train root", cfg.Dataset.TrainDir),
		CheckReadableDirectory("Eval root", cfg.Dataset.EvalDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Cache.Enabled {
		results = append(results, CheckCacheSpace(cfg.Cache.Path, minCacheFreeBytes))
	}

	results = append(results,
		CheckEligibleClasses("Train classes", cfg.Dataset.TrainDir, cfg.Episode.NWay, cfg.NImgPerClass()),
		CheckEligibleClasses("Eval classes", cfg.Dataset.EvalDir, cfg.Episode.NWay, cfg.NImgPerClass()),
	)
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckEligibleClasses verifies that root holds at least nway classes with
// nimg or more files each.
func CheckEligibleClasses(name, root string, nway, nimg int) Result {
	classes, err := classindex.List(root)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	eligible := classindex.Eligible(classes, nimg)
	detail := fmt.Sprintf("%d of %d classes have >= %d files", eligible, len(classes), nimg)
	if eligible < nway {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %d)", detail, nway)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}
