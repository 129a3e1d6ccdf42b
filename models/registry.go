// Package models owns the process-wide inference model handles.
//
// Each capability lives in its own Slot. A slot loads its model at most once
// successfully; concurrent first callers of the same slot wait for the single
// in-flight load, while slots never block each other. A failed load is not
// remembered, so the next caller retries.
package models

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Capability names an inference function independent of its backing model.
type Capability string

const (
	Transcriber      Capability = "transcriber"
	Classifier       Capability = "classifier"
	KeywordExtractor Capability = "keyword-extractor"
)

// State is the lifecycle state of a slot.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// LoadFunc performs the expensive model load.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Observer is notified after every load attempt.
type Observer func(c Capability, d time.Duration, err error)

// Slot is the handle for one capability.
type Slot[T any] struct {
	capability Capability
	load       LoadFunc[T]
	log        logrus.FieldLogger
	observe    Observer

	mu    sync.Mutex
	ready atomic.Pointer[T]
	state atomic.Int32
	loads atomic.Int64
}

// NewSlot returns an uninitialized slot.
func NewSlot[T any](c Capability, load LoadFunc[T], log logrus.FieldLogger, observe Observer) *Slot[T] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Slot[T]{capability: c, load: load, log: log.WithField("capability", string(c)), observe: observe}
}

// Acquire returns the loaded model, loading it on first use.
func (s *Slot[T]) Acquire(ctx context.Context) (T, error) {
	if m := s.ready.Load(); m != nil {
		return *m, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.ready.Load(); m != nil {
		return *m, nil
	}

	s.state.Store(int32(Initializing))
	s.loads.Add(1)
	s.log.Info("loading model")
	start := time.Now()
	m, err := s.load(ctx)
	elapsed := time.Since(start)
	if s.observe != nil {
		s.observe(s.capability, elapsed, err)
	}
	if err != nil {
		s.state.Store(int32(Uninitialized))
		s.log.WithError(err).Warn("model load failed")
		var zero T
		return zero, fmt.Errorf("load %s: %w", s.capability, err)
	}

	s.ready.Store(&m)
	s.state.Store(int32(Ready))
	fields := logrus.Fields{"elapsed": elapsed.String()}
	if named, ok := any(m).(interface{ Model() string }); ok {
		fields["model"] = named.Model()
	}
	s.log.WithFields(fields).Info("model ready")
	return m, nil
}

func (s *Slot[T]) Capability() Capability { return s.capability }

func (s *Slot[T]) State() State { return State(s.state.Load()) }

// Loads reports how many times the underlying loader has been invoked.
func (s *Slot[T]) Loads() int64 { return s.loads.Load() }

type warmable interface {
	Capability() Capability
	State() State
	warm(ctx context.Context) error
}

func (s *Slot[T]) warm(ctx context.Context) error {
	_, err := s.Acquire(ctx)
	return err
}
