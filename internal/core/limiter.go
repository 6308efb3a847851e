package core

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// DefaultMaxConcurrentGenerations is the default limit for parallel guide generations.
const DefaultMaxConcurrentGenerations = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// GenerationLimiter caps concurrent guide generations across all batches and
// tracks which guides hold its slots. A caller that finds every slot taken
// waits up to maxWait, then gets ErrTooManyGenerations.
type GenerationLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	byGuide map[string]int
	active  int
	// idle is closed whenever no generation holds a slot.
	idle chan struct{}
}

// NewGenerationLimiter creates a limiter that allows at most maxConcurrent
// simultaneous generations.
func NewGenerationLimiter(maxConcurrent int, maxWait time.Duration) *GenerationLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentGenerations
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	idle := make(chan struct{})
	close(idle)
	return &GenerationLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		byGuide: make(map[string]int),
		idle:    idle,
	}
}

// Acquire takes a slot for one generation of guide. The returned release
// func gives it back and is safe to call more than once.
func (l *GenerationLimiter) Acquire(ctx context.Context, guide string) (release func(), err error) {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s waited %s", ErrTooManyGenerations, guide, l.maxWait)
	}

	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.byGuide[guide]++
	l.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { l.release(guide) }) }, nil
}

func (l *GenerationLimiter) release(guide string) {
	l.mu.Lock()
	l.active--
	if l.byGuide[guide]--; l.byGuide[guide] == 0 {
		delete(l.byGuide, guide)
	}
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()

	<-l.slots
}

// ActiveCount returns the number of generations holding a slot.
func (l *GenerationLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// ActiveFor returns the number of slots held by generations of guide.
func (l *GenerationLimiter) ActiveFor(guide string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byGuide[guide]
}

// MaxConcurrent returns the maximum allowed concurrent generations.
func (l *GenerationLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *GenerationLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no generation holds a slot or ctx is done.
func (l *GenerationLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GenerationLimiterStatus is a snapshot of the limiter's current state.
type GenerationLimiterStatus struct {
	Active        int            `json:"active"`
	Available     int            `json:"available"`
	MaxConcurrent int            `json:"max_concurrent"`
	ByGuide       map[string]int `json:"by_guide"`
}

// Status returns the current limiter state.
func (l *GenerationLimiter) Status() GenerationLimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return GenerationLimiterStatus{
		Active:        l.active,
		Available:     cap(l.slots) - l.active,
		MaxConcurrent: cap(l.slots),
		ByGuide:       maps.Clone(l.byGuide),
	}
}
