// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"
)

var logger = loggo.GetLogger("script-exporter.artifact")

const (
	// WriteError is matched by the error returned from Result.Err when at
	// least one file could not be converged.
	WriteError = errors.ConstError("artifact write failed")
)

// File is a desired artifact: its path relative to the writer's root, its
// full content and its permission bits.
type File struct {
	Path    string
	Content []byte
	Mode    os.FileMode
}

// Hash returns the hex encoded SHA-256 of the desired content.
func (f File) Hash() string {
	sum := sha256.Sum256(f.Content)
	return hex.EncodeToString(sum[:])
}

// Result describes the outcome of converging a batch of files.
type Result struct {
	// Changed holds the paths whose content was (re)written.
	Changed set.Strings

	// Errors holds the paths that could not be converged.
	Errors map[string]error

	// Hashes holds the content hash now on disk for every converged path.
	Hashes map[string]string
}

// Digest returns a hash identifying the on-disk content of the given
// paths. A path that failed to converge contributes an empty hash, so the
// digest differs from the one of any fully converged batch.
func (r Result) Digest(paths ...string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, p := range sorted {
		fmt.Fprintf(h, "%s\x00%s\n", p, r.Hashes[p])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Err returns nil when every file converged, otherwise a PathErrors value
// matching WriteError.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return PathErrors(r.Errors)
}

// PathErrors holds per-path write failures.
type PathErrors map[string]error

// Paths returns the failed paths, sorted.
func (e PathErrors) Paths() []string {
	paths := make([]string, 0, len(e))
	for p := range e {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Error implements error.
func (e PathErrors) Error() string {
	paths := e.Paths()
	if len(paths) == 0 {
		return WriteError.Error()
	}
	return fmt.Sprintf("writing %s: %v", strings.Join(paths, ", "), e[paths[0]])
}

// Is allows errors.Is(err, WriteError).
func (e PathErrors) Is(target error) bool {
	return target == WriteError
}

// Writer converges files on disk towards their desired content. It never
// removes files it was not asked about.
type Writer struct{}

// NewWriter returns a new Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// ReconcileFiles writes every desired file whose on-disk content differs
// from the desired content, creating parent directories as needed. A
// failure on one path does not stop the others; it is recorded in the
// result instead.
func (w *Writer) ReconcileFiles(root string, desired []File) Result {
	result := Result{
		Changed: set.NewStrings(),
		Errors:  make(map[string]error),
		Hashes:  make(map[string]string),
	}
	for _, f := range desired {
		changed, err := w.reconcile(root, f)
		if err != nil {
			logger.Errorf("cannot write %q: %v", f.Path, err)
			result.Errors[f.Path] = err
			continue
		}
		result.Hashes[f.Path] = f.Hash()
		if changed {
			logger.Debugf("wrote %q", f.Path)
			result.Changed.Add(f.Path)
		}
	}
	return result
}

func (w *Writer) reconcile(root string, f File) (bool, error) {
	target, err := resolve(root, f.Path)
	if err != nil {
		return false, errors.Trace(err)
	}
	mode := f.Mode
	if mode == 0 {
		mode = 0644
	}

	info, err := os.Lstat(target)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return false, errors.Annotatef(err, "inspecting %q", target)
	case info.IsDir():
		return false, errors.Errorf("%q is a directory", target)
	default:
		current, _, err := utils.ReadFileSHA256(target)
		if err != nil {
			return false, errors.Annotatef(err, "hashing %q", target)
		}
		if current == f.Hash() {
			if info.Mode().Perm() != mode.Perm() {
				if err := os.Chmod(target, mode); err != nil {
					return false, errors.Annotatef(err, "setting mode of %q", target)
				}
			}
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return false, errors.Annotatef(err, "creating parent of %q", target)
	}
	if err := utils.AtomicWriteFile(target, f.Content, mode); err != nil {
		return false, errors.Annotatef(err, "writing %q", target)
	}
	return true, nil
}

// resolve joins a slash separated relative path onto root, refusing paths
// that would land outside it.
func resolve(root, rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) {
		return "", errors.NotValidf("artifact path %q", rel)
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.NotValidf("artifact path %q", rel)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}
