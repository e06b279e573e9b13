// Package resilient provides a wrapper that presents one stable interface
// over the tiered memory store and its legacy predecessor.
//
// The wrapper routes every call to the preferred backend, catches backend
// failures, falls back transparently, and reports combined health. Backend
// failures are never surfaced as errors on the uniform operations; the
// caller observes the fallback result or a neutral value, plus a Status that
// names the backend used, whether a fallback happened, and the swallowed
// reason. This trades transparency for availability: without inspecting the
// Status, callers cannot distinguish "no results" from "backend down".
package resilient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/memkeep/memkeep-go/pkg/memory"
)

// ErrCapabilityNotFound indicates that an extension operation is not
// supported by any available backend. Unlike failures of the uniform
// operations, this is surfaced to the caller: there is no sensible neutral
// value for a capability that does not exist.
var ErrCapabilityNotFound = errors.New("resilient: capability not found on active backend")

// ErrNoBackend is the swallowed reason reported in a Status when the
// routing rule selects no backend at all.
var ErrNoBackend = errors.New("resilient: no backend available")

// Backend is the uniform operation set both stores implement.
//
// The wrapper depends on this interface with two compile-time
// implementations (memory.Store and legacy.Store); anything outside it is an
// enumerated extension operation, never a runtime lookup.
type Backend interface {
	Add(ctx context.Context, ownerID, content string, opts ...memory.AddOption) (string, error)
	Retrieve(ctx context.Context, ownerID, query string, limit int) ([]memory.ScoredRecord, error)
	Clear(ctx context.Context, ownerID string) error
	DeleteOne(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
}

// MoodCleaner is the extension operation set of backends that support
// mood-aware cleanup (the legacy store).
type MoodCleaner interface {
	Cleanup(ctx context.Context, currentMood string) (int, error)
}

// ExchangeRecorder is the extension operation set of backends that record
// whole conversational exchanges (the legacy store).
type ExchangeRecorder interface {
	RecordExchange(ctx context.Context, userMsg, assistantMsg, mood string) (string, error)
}

// BackendKind names which backend served an operation.
type BackendKind string

const (
	// KindAdvanced is the tiered memory store.
	KindAdvanced BackendKind = "advanced"

	// KindLegacy is the single-tier fallback store.
	KindLegacy BackendKind = "legacy"

	// KindNone means no backend was available.
	KindNone BackendKind = "none"
)

// Status reports how an operation was served. Err is informational: it holds
// the swallowed failure reason when Degraded is true or Backend is KindNone,
// and is nil on the happy path.
type Status struct {
	// Backend is the backend that produced the returned value.
	Backend BackendKind

	// Degraded is true when the preferred backend failed and the call fell
	// through to the other backend or to a neutral value.
	Degraded bool

	// Err is the swallowed failure, if any.
	Err error
}

// Health is the wrapper's combined health report. The probes are advisory,
// not authoritative: a backend can report healthy and still fail on the
// next real operation.
type Health struct {
	// AdvancedOK reports whether the advanced backend is structurally
	// reachable.
	AdvancedOK bool `json:"advanced_ok"`

	// LegacyOK reports whether the legacy backend is present and reachable.
	LegacyOK bool `json:"legacy_ok"`

	// Active is the backend currently selected by the routing rule.
	Active BackendKind `json:"active_backend"`

	// Errors holds any errors observed during the probes.
	Errors []string `json:"errors,omitempty"`
}

// Wrapper routes memory operations to the advanced backend when possible
// and to the legacy backend otherwise. Either backend may be absent.
//
// The selection rule, evaluated fresh on every call: if force-legacy is set,
// use legacy; else if force-advanced is set, use advanced; else use advanced
// if present, otherwise legacy.
type Wrapper struct {
	advanced Backend
	legacy   Backend
	logger   *log.Logger

	mu            sync.Mutex // guards the force flags
	forceLegacy   bool
	forceAdvanced bool
}

// New creates a wrapper over the given backends. Either may be nil.
func New(advanced, legacy Backend, logger *log.Logger) *Wrapper {
	if logger == nil {
		logger = log.Default()
	}
	w := &Wrapper{advanced: advanced, legacy: legacy, logger: logger}

	switch {
	case advanced == nil && legacy == nil:
		logger.Error("no memory backend available; all operations will return neutral values")
	case advanced == nil:
		logger.Warn("advanced memory backend absent; starting on legacy backend")
	}
	return w
}

// ForceLegacy pins routing to the legacy backend. Enabling it clears the
// advanced override; the two flags are mutually exclusive when set.
func (w *Wrapper) ForceLegacy(enable bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.forceLegacy = enable
	if enable {
		w.forceAdvanced = false
	}
	w.logger.Info("force legacy backend", "enabled", enable)
}

// ForceAdvanced pins routing to the advanced backend. Enabling it clears
// the legacy override.
func (w *Wrapper) ForceAdvanced(enable bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.forceAdvanced = enable
	if enable {
		w.forceLegacy = false
	}
	w.logger.Info("force advanced backend", "enabled", enable)
}

// useAdvanced applies the selection rule.
func (w *Wrapper) useAdvanced() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.forceLegacy {
		return false
	}
	if w.forceAdvanced {
		return true
	}
	return w.advanced != nil
}

// active returns the currently selected backend and its kind. The backend
// may be nil when the selected side is absent.
func (w *Wrapper) active() (Backend, BackendKind) {
	if w.useAdvanced() {
		if w.advanced == nil {
			return nil, KindNone
		}
		return w.advanced, KindAdvanced
	}
	if w.legacy == nil {
		return nil, KindNone
	}
	return w.legacy, KindLegacy
}

// dispatch runs op against the backend the routing rule selects. When the
// advanced backend fails the op is retried on legacy; a forced but absent
// backend yields KindNone rather than silently rerouting. The returned
// Status never carries a backend failure as a Go error to the caller; the
// op's value slot holds the neutral value on total failure.
func (w *Wrapper) dispatch(name string, op func(Backend) error) Status {
	backend, kind := w.active()

	switch kind {
	case KindAdvanced:
		err := op(backend)
		if err == nil {
			return Status{Backend: KindAdvanced}
		}
		w.logger.Error("advanced backend operation failed", "op", name, "error", err)
		if w.legacy != nil {
			w.logger.Warn("falling back to legacy backend", "op", name)
			if lerr := op(w.legacy); lerr == nil {
				return Status{Backend: KindLegacy, Degraded: true, Err: err}
			} else {
				w.logger.Error("legacy backend operation failed", "op", name, "error", lerr)
				return Status{Backend: KindNone, Degraded: true, Err: errors.Join(err, lerr)}
			}
		}
		return Status{Backend: KindNone, Degraded: true, Err: err}

	case KindLegacy:
		if err := op(backend); err != nil {
			w.logger.Error("legacy backend operation failed", "op", name, "error", err)
			return Status{Backend: KindNone, Degraded: true, Err: err}
		}
		return Status{Backend: KindLegacy}

	default:
		return Status{Backend: KindNone, Degraded: true, Err: ErrNoBackend}
	}
}

// Add stores a record through the active backend. On failure of the
// advanced backend the call falls through to legacy; if no backend
// succeeds, the neutral empty id is returned. The Status names the backend
// that produced the id.
func (w *Wrapper) Add(ctx context.Context, ownerID, content string, opts ...memory.AddOption) (string, Status) {
	var id string
	status := w.dispatch("add", func(b Backend) error {
		var err error
		id, err = b.Add(ctx, ownerID, content, opts...)
		return err
	})
	if status.Backend == KindNone {
		id = ""
	}
	return id, status
}

// Retrieve queries the active backend. Failures degrade to the legacy
// backend and finally to an empty result, never an error.
func (w *Wrapper) Retrieve(ctx context.Context, ownerID, query string, limit int) ([]memory.ScoredRecord, Status) {
	var records []memory.ScoredRecord
	status := w.dispatch("retrieve", func(b Backend) error {
		var err error
		records, err = b.Retrieve(ctx, ownerID, query, limit)
		return err
	})
	if status.Backend == KindNone {
		records = nil
	}
	return records, status
}

// Clear removes the owner's records through the active backend.
func (w *Wrapper) Clear(ctx context.Context, ownerID string) Status {
	return w.dispatch("clear", func(b Backend) error {
		return b.Clear(ctx, ownerID)
	})
}

// DeleteOne removes a single record through the active backend. The neutral
// value on total failure is false.
func (w *Wrapper) DeleteOne(ctx context.Context, id string) (bool, Status) {
	var deleted bool
	status := w.dispatch("delete", func(b Backend) error {
		var err error
		deleted, err = b.DeleteOne(ctx, id)
		return err
	})
	if status.Backend == KindNone {
		deleted = false
	}
	return deleted, status
}

// Health probes both backends independently and reports which one the
// routing rule currently selects.
func (w *Wrapper) Health(ctx context.Context) Health {
	h := Health{Active: KindNone}

	if w.advanced != nil {
		if err := w.advanced.Ping(ctx); err != nil {
			h.Errors = append(h.Errors, fmt.Sprintf("advanced: %v", err))
		} else {
			h.AdvancedOK = true
		}
	}
	if w.legacy != nil {
		if err := w.legacy.Ping(ctx); err != nil {
			h.Errors = append(h.Errors, fmt.Sprintf("legacy: %v", err))
		} else {
			h.LegacyOK = true
		}
	}

	if _, kind := w.active(); kind != KindNone {
		h.Active = kind
	}
	return h
}

// Cleanup forwards mood-aware cleanup to a backend that supports it,
// preferring the active backend, then the other one. Returns
// ErrCapabilityNotFound when neither backend implements it.
func (w *Wrapper) Cleanup(ctx context.Context, currentMood string) (int, error) {
	for _, b := range w.capabilityOrder() {
		if cleaner, ok := b.(MoodCleaner); ok {
			return cleaner.Cleanup(ctx, currentMood)
		}
	}
	return 0, ErrCapabilityNotFound
}

// RecordExchange forwards exchange recording to a backend that supports it,
// with the same resolution order as Cleanup.
func (w *Wrapper) RecordExchange(ctx context.Context, userMsg, assistantMsg, mood string) (string, error) {
	for _, b := range w.capabilityOrder() {
		if recorder, ok := b.(ExchangeRecorder); ok {
			return recorder.RecordExchange(ctx, userMsg, assistantMsg, mood)
		}
	}
	return "", ErrCapabilityNotFound
}

// capabilityOrder lists the non-nil backends, active one first.
func (w *Wrapper) capabilityOrder() []Backend {
	selected, _ := w.active()

	var order []Backend
	if selected != nil {
		order = append(order, selected)
	}
	for _, b := range []Backend{w.advanced, w.legacy} {
		if b != nil && b != selected {
			order = append(order, b)
		}
	}
	return order
}
