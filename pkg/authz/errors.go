package authz

import (
	"fmt"

	"github.com/relguard/rebac/pkg/model"
)

// ConfigurationError reports a misconfigured Engine: a missing required
// dependency, or an option value the engine cannot operate with.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("authz: configuration error: %s: %s", e.Field, e.Reason)
}

// SchemaError reports an operation that referenced a relation the schema
// does not support in the required role — e.g. addMember when no group
// relation is declared, or allow against an undeclared relation.
type SchemaError struct {
	Op     string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("authz: schema error: %s: %s", e.Op, e.Reason)
}

// MaxDepthExceededError is raised by Check when ThrowOnMaxDepth is set and
// traversal would exceed the configured depth budget. It always fires
// alongside a warning on WarningSink, whether or not it is also returned.
type MaxDepthExceededError struct {
	Subject model.SubjectRef
	Action  model.Action
	Object  model.Object
	Depth   int
}

func (e *MaxDepthExceededError) Error() string {
	return fmt.Sprintf("authz: max depth exceeded at depth %d checking %s can %s %s", e.Depth, e.Subject, e.Action, e.Object)
}
