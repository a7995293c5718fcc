package classindex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fewshot/internal/services"
)

// Mode selects one of the two dataset roots.
type Mode string

const (
	ModeTrain Mode = "train"
	ModeEval  Mode = "eval"
)

// ParseMode converts CLI or config input into a Mode.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "train", "training":
		return ModeTrain, nil
	case "eval", "test", "held-out", "heldout":
		return ModeEval, nil
	default:
		return "", services.Wrap(services.ErrConfiguration, "classindex", "parse mode",
			fmt.Sprintf("unknown mode %q (want train or eval)", value), nil)
	}
}

// Class is one class directory and its member files.
type Class struct {
	Name  string
	Path  string
	Files []string
}

// Index holds the classes of both dataset roots.
type Index struct {
	TrainRoot string
	EvalRoot  string
	Train     []Class
	Eval      []Class
}

// List returns the class directories below root in listing order.
func List(root string) ([]Class, error) {
	entries, err := readDir(root)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "classindex", "list classes", root, err)
	}

	classes := make([]Class, 0, len(entries))
	for _, entry := range entries {
		classPath := filepath.Join(root, entry.Name())
		mode, err := entryMode(classPath, entry)
		if err != nil {
			return nil, services.Wrap(services.ErrIO, "classindex", "stat class", classPath, err)
		}
		if !mode.IsDir() {
			continue
		}
		files, err := listFiles(classPath)
		if err != nil {
			return nil, services.Wrap(services.ErrIO, "classindex", "list files", classPath, err)
		}
		classes = append(classes, Class{
			Name:  entry.Name(),
			Path:  classPath,
			Files: files,
		})
	}
	return classes, nil
}

// Load lists both roots. The roots must not be the same directory.
func Load(trainRoot, evalRoot string) (*Index, error) {
	if filepath.Clean(trainRoot) == filepath.Clean(evalRoot) {
		return nil, services.Wrap(services.ErrConfiguration, "classindex", "load",
			"train and eval roots must be different", nil)
	}
	train, err := List(trainRoot)
	if err != nil {
		return nil, err
	}
	eval, err := List(evalRoot)
	if err != nil {
		return nil, err
	}
	return &Index{
		TrainRoot: trainRoot,
		EvalRoot:  evalRoot,
		Train:     train,
		Eval:      eval,
	}, nil
}

// Split returns the classes of the requested mode.
func (i *Index) Split(mode Mode) []Class {
	if i == nil {
		return nil
	}
	if mode == ModeEval {
		return i.Eval
	}
	return i.Train
}

// Root returns the directory the classes of mode were listed from.
func (i *Index) Root(mode Mode) string {
	if i == nil {
		return ""
	}
	if mode == ModeEval {
		return i.EvalRoot
	}
	return i.TrainRoot
}

// readDir returns entries unsorted; os.ReadDir would sort them by name.
func readDir(dir string) ([]os.DirEntry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadDir(-1)
}

func listFiles(dir string) ([]string, error) {
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		mode, err := entryMode(path, entry)
		if err != nil {
			return nil, err
		}
		if !mode.IsRegular() {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

// entryMode classifies symlinks by their target. Dangling links report a
// zero mode and are skipped.
func entryMode(path string, entry os.DirEntry) (fs.FileMode, error) {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.Type(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return info.Mode(), nil
}
