package us

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

const progressFile = ".progress.yaml"

// progressState is the on-disk form of the tracker.
type progressState struct {
	LastCompleted string   `yaml:"last_completed"`
	Empty         []string `yaml:"empty"`
}

// progressTracker remembers which symbols returned no data for the current
// end date and which end date last completed, so an interrupted gather
// resumes and a finished one is a no-op.
type progressTracker struct {
	mu    sync.Mutex
	path  string
	state progressState
	empty map[string]struct{}
}

// loadProgress reads the tracker stored in dir, if any.
func loadProgress(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	pt := &progressTracker{
		path:  filepath.Join(dir, progressFile),
		empty: make(map[string]struct{}),
	}
	data, err := os.ReadFile(pt.path)
	switch {
	case os.IsNotExist(err):
		return pt, nil
	case err != nil:
		return nil, fmt.Errorf("reading progress: %w", err)
	}
	if err := yaml.Unmarshal(data, &pt.state); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pt.path, err)
	}
	for _, sym := range pt.state.Empty {
		pt.empty[sym] = struct{}{}
	}
	return pt, nil
}

func (p *progressTracker) IsEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.empty[symbol]
	return ok
}

// MarkEmpty records symbols that returned no bars and persists the state.
func (p *progressTracker) MarkEmpty(symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sym := range symbols {
		p.empty[sym] = struct{}{}
	}
	return p.saveLocked()
}

func (p *progressTracker) LastCompleted() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.LastCompleted
}

func (p *progressTracker) IsCompleted(date string) bool {
	return p.LastCompleted() == date
}

func (p *progressTracker) MarkCompleted(date string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.LastCompleted = date
	return p.saveLocked()
}

// Reset forgets the empty set. The completed date is kept.
func (p *progressTracker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.empty = make(map[string]struct{})
	return p.saveLocked()
}

func (p *progressTracker) saveLocked() error {
	p.state.Empty = p.state.Empty[:0]
	for sym := range p.empty {
		p.state.Empty = append(p.state.Empty, sym)
	}
	sort.Strings(p.state.Empty)

	data, err := yaml.Marshal(&p.state)
	if err != nil {
		return fmt.Errorf("encoding progress: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing progress: %w", err)
	}
	return os.Rename(tmp, p.path)
}
