// Package health tracks whether the remote listing behind a mount is fresh.
//
// A mount keeps serving the last good listing when a resync fails, so a
// failed sync degrades the mount rather than breaking it. Repeated failures,
// or a credential the remote refuses, mark it unavailable.
package health

import (
	stderr "errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/drivefs/drivefs/pkg/errors"
)

// State is the health of one tracked component.
type State int

const (
	// StateHealthy means the last sync succeeded.
	StateHealthy State = iota

	// StateDegraded means recent syncs failed and a stale listing is served.
	StateDegraded

	// StateUnavailable means the remote has failed long enough, or refused
	// the credential, so the listing cannot be trusted to recover on its own.
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ComponentHealth is a snapshot of one component.
type ComponentHealth struct {
	Name              string            `json:"name"`
	State             State             `json:"state"`
	LastStateChange   time.Time         `json:"last_state_change"`
	LastCheck         time.Time         `json:"last_check"`
	LastSuccess       time.Time         `json:"last_success,omitempty"`
	ConsecutiveErrors int               `json:"consecutive_errors"`
	LastErrorMessage  string            `json:"last_error_message,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Config sets the failure counts at which a component changes state.
type Config struct {
	// DegradedThreshold is the number of consecutive failures before a
	// component is degraded.
	DegradedThreshold int `yaml:"degraded_threshold" json:"degraded_threshold"`

	// UnavailableThreshold is the number of consecutive failures before a
	// component is unavailable.
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`
}

// DefaultConfig degrades on the first failure and gives up after three.
func DefaultConfig() Config {
	return Config{
		DegradedThreshold:    1,
		UnavailableThreshold: 3,
	}
}

// StateChangeCallback is called after a component changes state.
type StateChangeCallback func(component string, oldState, newState State, err error)

// Tracker holds the health of a set of named components.
type Tracker struct {
	mu         sync.RWMutex
	config     Config
	components map[string]*ComponentHealth
	callbacks  []StateChangeCallback
	now        func() time.Time
}

// NewTracker creates a tracker. Non-positive thresholds fall back to the
// defaults.
func NewTracker(config Config) *Tracker {
	def := DefaultConfig()
	if config.DegradedThreshold <= 0 {
		config.DegradedThreshold = def.DegradedThreshold
	}
	if config.UnavailableThreshold < config.DegradedThreshold {
		config.UnavailableThreshold = config.DegradedThreshold
	}
	return &Tracker{
		config:     config,
		components: make(map[string]*ComponentHealth),
		now:        time.Now,
	}
}

// RegisterComponent starts tracking name as healthy. Registering twice is a
// no-op.
func (t *Tracker) RegisterComponent(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.components[name]; ok {
		return
	}
	now := t.now()
	t.components[name] = &ComponentHealth{
		Name:            name,
		State:           StateHealthy,
		LastStateChange: now,
		LastCheck:       now,
		Metadata:        make(map[string]string),
	}
}

// OnStateChange registers a callback run synchronously after every state
// change. Callbacks must not call back into the tracker.
func (t *Tracker) OnStateChange(cb StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// RecordSuccess marks component healthy. A complete sync replaces the
// listing, so one success fully recovers.
func (t *Tracker) RecordSuccess(component string) {
	t.record(component, nil)
}

// RecordError counts a failure against component.
func (t *Tracker) RecordError(component string, err error) {
	if err == nil {
		err = fmt.Errorf("unspecified failure")
	}
	t.record(component, err)
}

func (t *Tracker) record(component string, err error) {
	t.mu.Lock()
	h, ok := t.components[component]
	if !ok {
		t.mu.Unlock()
		return
	}

	now := t.now()
	old := h.State
	h.LastCheck = now
	if err == nil {
		h.ConsecutiveErrors = 0
		h.LastErrorMessage = ""
		h.LastSuccess = now
		h.State = StateHealthy
	} else {
		h.ConsecutiveErrors++
		h.LastErrorMessage = err.Error()
		h.State = t.stateFor(h.ConsecutiveErrors, err)
	}
	if h.State != old {
		h.LastStateChange = now
	}
	newState := h.State
	callbacks := append([]StateChangeCallback(nil), t.callbacks...)
	t.mu.Unlock()

	if newState != old {
		for _, cb := range callbacks {
			cb(component, old, newState, err)
		}
	}
}

// stateFor picks the state after n consecutive failures ending in err.
func (t *Tracker) stateFor(n int, err error) State {
	if isCredentialRejected(err) || n >= t.config.UnavailableThreshold {
		return StateUnavailable
	}
	if n >= t.config.DegradedThreshold {
		return StateDegraded
	}
	return StateHealthy
}

// isCredentialRejected reports a remote failure with status 401 or 403.
// Retrying with the same credential cannot succeed.
func isCredentialRejected(err error) bool {
	var de *errors.DriveFSError
	if !stderr.As(err, &de) || de.Code != errors.ErrCodeRemoteFailure {
		return false
	}
	return de.Status == http.StatusUnauthorized || de.Status == http.StatusForbidden
}

// SetMetadata attaches a key/value pair to component.
func (t *Tracker) SetMetadata(component, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.components[component]; ok {
		h.Metadata[key] = value
	}
}

// State returns the state of component. Unknown components are
// unavailable.
func (t *Tracker) State(component string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.components[component]; ok {
		return h.State
	}
	return StateUnavailable
}

// Component returns a snapshot of component.
func (t *Tracker) Component(component string) (ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.components[component]
	if !ok {
		return ComponentHealth{}, fmt.Errorf("component %s not registered", component)
	}
	return h.snapshot(), nil
}

// Components returns snapshots of every component ordered by name.
func (t *Tracker) Components() []ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ComponentHealth, 0, len(t.components))
	for _, h := range t.components {
		out = append(out, h.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Overall returns the worst state of any component, or healthy when none
// are registered.
func (t *Tracker) Overall() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	overall := StateHealthy
	for _, h := range t.components {
		if h.State > overall {
			overall = h.State
		}
	}
	return overall
}

func (h *ComponentHealth) snapshot() ComponentHealth {
	c := *h
	c.Metadata = make(map[string]string, len(h.Metadata))
	for k, v := range h.Metadata {
		c.Metadata[k] = v
	}
	return c
}
