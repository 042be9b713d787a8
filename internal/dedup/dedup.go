// Package dedup hands out collision-free local filenames for one session.
package dedup

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Index maps a base filename to the number of times it has been requested
// and remembers every name it handed out. The zero value is not usable; call
// New.
type Index struct {
	mu          sync.Mutex
	counts      map[string]int
	suffix      map[string]int // last counter used per base filename
	taken       map[string]bool
	assignments []string
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		counts: make(map[string]int),
		suffix: make(map[string]int),
		taken:  make(map[string]bool),
	}
}

// Resolve returns the name to use for the next download of filename.
// The first request returns filename unchanged; later requests return
// base_02.ext, base_03.ext and so on, skipping any name already handed out,
// including names that were themselves requested verbatim. Safe for
// concurrent use.
func (i *Index) Resolve(filename string) string {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.counts[filename]++

	name := filename
	n := max(i.suffix[filename], 1)
	for i.taken[name] {
		n++
		name = Suffixed(filename, n)
	}
	i.suffix[filename] = n
	i.taken[name] = true
	i.assignments = append(i.assignments, name)

	return name
}

// Count returns how many times filename has been resolved.
func (i *Index) Count(filename string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.counts[filename]
}

// Assignments returns every name handed out so far, in assignment order.
func (i *Index) Assignments() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.assignments))
	copy(out, i.assignments)
	return out
}

// Suffixed inserts a zero-padded counter before the extension of filename.
func Suffixed(filename string, n int) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return fmt.Sprintf("%s_%02d%s", base, n, ext)
}
