package fs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault")

// Fault describes how writes to matching files fail.
type Fault struct {
	// FailAfterBytes fails writes once this many bytes were written to the file
	// handle. Zero or negative disables the limit.
	FailAfterBytes int64
	// Torn writes the bytes that still fit under the limit before failing,
	// which leaves a partial record on disk like a crash mid-append.
	Torn bool
	// FailOnSync makes Sync fail.
	FailOnSync bool
	// FailOnTruncate makes File.Truncate fail.
	FailOnTruncate bool
	// Err overrides ErrInjected.
	Err error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS is a FileSystem wrapper that injects errors per file name.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules map[string]Fault // base name -> fault
}

// NewFaultyFS creates a new FaultyFS wrapping fsys (or Default if nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{
		FS:    fsys,
		rules: make(map[string]Fault),
	}
}

// AddRule installs a fault for files whose base name equals name.
// Handles opened before the call are not affected.
func (f *FaultyFS) AddRule(name string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[name] = fault
}

// ClearRules removes all rules.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = make(map[string]Fault)
}

func (f *FaultyFS) rule(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[filepath.Base(name)]
	return r, ok
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	fault, ok := f.rule(name)
	if !ok {
		return file, nil
	}
	return &faultyFile{File: file, fault: fault}, nil
}

func (f *FaultyFS) Remove(name string) error              { return f.FS.Remove(name) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.FS.ReadDir(name) }

type faultyFile struct {
	File
	fault   Fault
	written int64
}

// budget returns how many of n bytes may still be written.
func (ff *faultyFile) budget(n int) (int, bool) {
	if ff.fault.FailAfterBytes <= 0 {
		return n, true
	}
	left := ff.fault.FailAfterBytes - ff.written
	if left >= int64(n) {
		return n, true
	}
	if left < 0 {
		left = 0
	}
	return int(left), false
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	allowed, ok := ff.budget(len(p))
	if ok {
		n, err := ff.File.Write(p)
		ff.written += int64(n)
		return n, err
	}
	if !ff.fault.Torn || allowed == 0 {
		return 0, ff.fault.err()
	}
	n, err := ff.File.Write(p[:allowed])
	ff.written += int64(n)
	if err != nil {
		return n, err
	}
	return n, ff.fault.err()
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	allowed, ok := ff.budget(len(p))
	if ok {
		n, err := ff.File.WriteAt(p, off)
		ff.written += int64(n)
		return n, err
	}
	if !ff.fault.Torn || allowed == 0 {
		return 0, ff.fault.err()
	}
	n, err := ff.File.WriteAt(p[:allowed], off)
	ff.written += int64(n)
	if err != nil {
		return n, err
	}
	return n, ff.fault.err()
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Truncate(size int64) error {
	if ff.fault.FailOnTruncate {
		return ff.fault.err()
	}
	return ff.File.Truncate(size)
}
