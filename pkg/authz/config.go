package authz

import (
	"log/slog"

	"github.com/relguard/rebac/pkg/canonicalize"
	"github.com/relguard/rebac/pkg/observability"
	"github.com/relguard/rebac/pkg/schema"
	"github.com/relguard/rebac/pkg/store"
)

// DefaultCheckDepth bounds traversal when Config.DefaultCheckDepth is zero.
const DefaultCheckDepth = 10

// DefaultFieldSeparator bounds field-fallback when Config.FieldSeparator is
// empty.
const DefaultFieldSeparator = "#"

// DecisionRecord is handed to a DecisionRecorder after every top-level Check
// call that returns without error, whether it granted or denied.
type DecisionRecord struct {
	Subject  string `json:"subject"`
	Action   string `json:"action"`
	Object   string `json:"object"`
	Allowed  bool   `json:"allowed"`
}

// Digest returns the canonical sha256 digest of the record, per RFC 8785
// JSON canonicalization. It is the value callers typically persist
// alongside or instead of the record itself, to prove a decision was made
// without needing to store its inputs.
func (r DecisionRecord) Digest() (string, error) {
	return canonicalize.Hash(r)
}

// Config wires an Engine's dependencies and traversal limits.
type Config struct {
	// Storage is the adapter tuples are read from and written to. Required.
	Storage store.Adapter
	// Schema is the validated relation/action model. Required.
	Schema *schema.Schema

	// DefaultCheckDepth bounds recursive traversal depth. Defaults to
	// DefaultCheckDepth when zero.
	DefaultCheckDepth int
	// FieldSeparator splits an object id into a base resource and a field
	// suffix for the field-fallback path. Defaults to DefaultFieldSeparator
	// when empty.
	FieldSeparator string
	// ThrowOnMaxDepth, when true, returns a *MaxDepthExceededError instead
	// of silently denying once DefaultCheckDepth is exceeded.
	ThrowOnMaxDepth bool
	// WarningSink receives human-readable warnings (max-depth overruns,
	// empty-filter disallow calls, schema issues surfaced lazily).
	// Defaults to logging at slog.LevelWarn.
	WarningSink func(string)
	// DecisionRecorder, if set, is invoked after every top-level Check call
	// that returns without error; a Check that fails is not recorded.
	DecisionRecorder func(DecisionRecord)
	// MaxConcurrentChecks bounds the fan-out width of ListAccessibleObjects'
	// phase-2 decision pass. Defaults to 8 when zero.
	MaxConcurrentChecks int
	// Observability, if set, wraps Check and ListAccessibleObjects in a span
	// plus RED metrics via Provider.TrackOperation. Nil disables
	// instrumentation entirely.
	Observability *observability.Provider
}

func (c Config) validate() error {
	if c.Storage == nil {
		return &ConfigurationError{Field: "Storage", Reason: "must not be nil"}
	}
	if c.Schema == nil {
		return &ConfigurationError{Field: "Schema", Reason: "must not be nil"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.DefaultCheckDepth <= 0 {
		c.DefaultCheckDepth = DefaultCheckDepth
	}
	if c.FieldSeparator == "" {
		c.FieldSeparator = DefaultFieldSeparator
	}
	if c.WarningSink == nil {
		c.WarningSink = func(msg string) { slog.Warn(msg) }
	}
	if c.MaxConcurrentChecks <= 0 {
		c.MaxConcurrentChecks = 8
	}
	return c
}
