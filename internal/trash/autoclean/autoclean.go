// Package autoclean evicts old versions from a trash store according to a
// Policy. Eviction runs as a pipeline of passes, by default age, same name,
// count and size, in that order.
package autoclean

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/k1LoW/duration"
	"github.com/samber/lo"

	"github.com/vtrash/vtrash/internal/trash"
)

// Policy holds the eviction thresholds. A zero threshold disables the pass
// that uses it.
type Policy struct {
	// MaxAge evicts versions deleted longer ago than this
	MaxAge time.Duration

	// SameNameLimit is the number of versions kept per original path
	SameNameLimit int

	// MaxCount is the number of files the trash is brought down to
	MaxCount int64

	// MaxSize is the number of bytes the trash is brought down to
	MaxSize int64
}

// NewPolicy builds a Policy from a maximum age expressed in days.
func NewPolicy(maxAgeDays, sameNameLimit int, maxCount, maxSize int64) (Policy, error) {
	p := Policy{
		SameNameLimit: sameNameLimit,
		MaxCount:      maxCount,
		MaxSize:       maxSize,
	}
	if maxAgeDays > 0 {
		d, err := duration.Parse(fmt.Sprintf("%d days", maxAgeDays))
		if err != nil {
			return Policy{}, fmt.Errorf("failed to parse max age: %w", err)
		}
		p.MaxAge = d
	}
	return p, nil
}

// Pass is one step of the eviction pipeline.
type Pass interface {
	Name() string
	Run(s *State) error
}

// DefaultPasses returns the default pipeline.
func DefaultPasses() []Pass {
	return []Pass{ByAge{}, BySameName{}, ByCount{}, BySize{}}
}

// PassResult is what a single pass evicted.
type PassResult struct {
	Name  string
	Count int64
	Size  int64
}

// Result is what a run evicted in total and per pass.
type Result struct {
	Count  int64
	Size   int64
	Passes []PassResult
}

// Cleaner runs the eviction pipeline against a store.
type Cleaner struct {
	store  *trash.Store
	policy Policy
	passes []Pass
	now    func() time.Time
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithPasses replaces the pipeline.
func WithPasses(passes ...Pass) Option {
	return func(c *Cleaner) {
		c.passes = passes
	}
}

// WithClock sets the time used as "now" by age based passes.
func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) {
		c.now = now
	}
}

// New returns a Cleaner for store.
func New(store *trash.Store, policy Policy, opts ...Option) *Cleaner {
	c := &Cleaner{
		store:  store,
		policy: policy,
		passes: DefaultPasses(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the thresholds of the cleaner.
func (c *Cleaner) Policy() Policy {
	return c.policy
}

// Run takes the store lock once, runs every pass in order and releases the
// lock. The first failed deletion aborts the pipeline; the returned Result
// still accounts for everything evicted before it.
func (c *Cleaner) Run() (result Result, err error) {
	guard, err := c.store.Acquire()
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if rerr := guard.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	entries, err := c.store.Entries()
	if err != nil {
		return Result{}, err
	}

	s := &State{
		store:   c.store,
		policy:  c.policy,
		now:     c.now().UTC(),
		entries: entries,
		evicted: make(map[key]bool),
	}

	for _, pass := range c.passes {
		s.current = PassResult{Name: pass.Name()}
		err := pass.Run(s)

		result.Passes = append(result.Passes, s.current)
		result.Count += s.current.Count
		result.Size += s.current.Size
		if s.current.Count > 0 {
			slog.Info("autoclean pass done",
				"pass", pass.Name(),
				"count", s.current.Count,
				"size", humanize.Bytes(uint64(s.current.Size)))
		}
		if err != nil {
			return result, fmt.Errorf("autoclean %s: %w", pass.Name(), err)
		}
		s.compact()
	}
	return result, nil
}

var _ trash.Evictor = (*Cleaner)(nil)

// Evict runs the cleaner and reports what it evicted in total.
func (c *Cleaner) Evict() (trash.Delta, error) {
	r, err := c.Run()
	return trash.Delta{Count: r.Count, Size: r.Size}, err
}

type key struct {
	path string
	at   int64
}

// keyOf identifies e by its stored file. Two stored names may parse to the
// same path and time.
func keyOf(e trash.Entry) key {
	if e.Stored != "" {
		return key{path: e.Stored}
	}
	return key{path: e.Path, at: e.DeletedAt.UnixMicro()}
}

// State is shared by the passes of a single run.
type State struct {
	store   *trash.Store
	policy  Policy
	now     time.Time
	entries []trash.Entry
	evicted map[key]bool
	current PassResult
}

// Policy returns the thresholds of the run.
func (s *State) Policy() Policy {
	return s.policy
}

// Now returns the time the run started.
func (s *State) Now() time.Time {
	return s.now
}

// Entries returns the versions still in the trash, oldest first.
func (s *State) Entries() []trash.Entry {
	return lo.Reject(s.entries, func(e trash.Entry, _ int) bool {
		return s.evicted[keyOf(e)]
	})
}

// Count returns the number of files in the trash.
func (s *State) Count() int64 {
	return s.store.Count()
}

// Size returns the total size of the trash in bytes.
func (s *State) Size() int64 {
	return s.store.Size()
}

// Evict deletes a version from the trash.
func (s *State) Evict(e trash.Entry, reason string) error {
	if s.evicted[keyOf(e)] {
		return nil
	}
	slog.Debug("evicting version", "path", e.Path, "deleted_at", e.DeletedAt, "reason", reason)

	removal, err := s.store.RemoveEntry(e)
	s.current.Count += removal.Count
	s.current.Size += removal.Size
	if err != nil {
		return err
	}
	s.evicted[keyOf(e)] = true
	return nil
}

func (s *State) compact() {
	s.entries = s.Entries()
}

// ByAge evicts every version older than Policy.MaxAge.
type ByAge struct{}

func (ByAge) Name() string { return "age" }

func (ByAge) Run(s *State) error {
	maxAge := s.Policy().MaxAge
	if maxAge <= 0 {
		return nil
	}
	for _, e := range s.Entries() {
		if s.Now().Sub(e.DeletedAt) <= maxAge {
			// entries are sorted oldest first
			break
		}
		if err := s.Evict(e, "too old"); err != nil {
			return err
		}
	}
	return nil
}

// BySameName keeps the Policy.SameNameLimit newest versions of every path.
type BySameName struct{}

func (BySameName) Name() string { return "same-name" }

func (BySameName) Run(s *State) error {
	limit := s.Policy().SameNameLimit
	if limit <= 0 {
		return nil
	}

	entries := s.Entries()
	groups := lo.GroupBy(entries, func(e trash.Entry) string { return e.Path })
	for _, path := range lo.Uniq(lo.Map(entries, func(e trash.Entry, _ int) string { return e.Path })) {
		versions := groups[path]
		if len(versions) <= limit {
			continue
		}
		// versions are oldest first
		for _, e := range versions[:len(versions)-limit] {
			if err := s.Evict(e, "too many versions"); err != nil {
				return err
			}
		}
	}
	return nil
}

// ByCount evicts the oldest versions until the trash holds at most
// Policy.MaxCount files.
type ByCount struct{}

func (ByCount) Name() string { return "count" }

func (ByCount) Run(s *State) error {
	limit := s.Policy().MaxCount
	if limit <= 0 {
		return nil
	}
	return evictOldestWhile(s, func() bool { return s.Count() > limit }, "too many files")
}

// BySize evicts the oldest versions until the trash holds at most
// Policy.MaxSize bytes.
type BySize struct{}

func (BySize) Name() string { return "size" }

func (BySize) Run(s *State) error {
	limit := s.Policy().MaxSize
	if limit <= 0 {
		return nil
	}
	return evictOldestWhile(s, func() bool { return s.Size() > limit }, "trash too large")
}

func evictOldestWhile(s *State, over func() bool, reason string) error {
	for _, e := range s.Entries() {
		if !over() {
			return nil
		}
		if err := s.Evict(e, reason); err != nil {
			return err
		}
	}
	if over() {
		// the remaining usage is not made of versions (e.g. stray files)
		slog.Warn("autoclean could not reach the limit", "reason", reason)
	}
	return nil
}
