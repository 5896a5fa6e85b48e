// Package auth holds the scope model shared by the HTTP and MCP surfaces.
package auth

import (
	"fmt"
	"strings"
)

const (
	ScopePlan            = "agenda.plan"
	ScopeAgendaRead      = "agenda.read"
	ScopeWorkstreamRead  = "workstream.read"
	ScopeWorkstreamWrite = "workstream.write"
	ScopeFactRead        = "fact.read"
	ScopeFactWrite       = "fact.write"
	ScopeMeetingWrite    = "meeting.write"
)

// AllScopes lists every scope an unrestricted principal holds.
var AllScopes = []string{
	ScopePlan, ScopeAgendaRead, ScopeWorkstreamRead, ScopeWorkstreamWrite,
	ScopeFactRead, ScopeFactWrite, ScopeMeetingWrite,
}

// ForbiddenError indicates a missing scope.
type ForbiddenError struct {
	Scope string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("scope %s required", e.Scope)
}

// Allowed reports whether granted covers scope. "*" grants everything and
// "fact.*" grants every fact scope.
func Allowed(granted []string, scope string) bool {
	for _, g := range granted {
		g = strings.TrimSpace(g)
		switch {
		case g == "*", g == scope:
			return true
		case strings.HasSuffix(g, ".*") && strings.HasPrefix(scope, strings.TrimSuffix(g, "*")):
			return true
		}
	}
	return false
}

// Require returns ForbiddenError unless granted covers scope.
func Require(granted []string, scope string) error {
	if Allowed(granted, scope) {
		return nil
	}
	return ForbiddenError{Scope: scope}
}

// Normalize returns AllScopes for a principal that carries no scope claim.
func Normalize(scopes []string) []string {
	if len(scopes) == 0 {
		return AllScopes
	}
	return scopes
}

// Valid reports whether scope names a known scope, a known prefix
// wildcard such as "fact.*", or "*".
func Valid(scope string) bool {
	if scope == "*" {
		return true
	}
	for _, s := range AllScopes {
		if s == scope || (strings.HasSuffix(scope, ".*") && strings.HasPrefix(s, strings.TrimSuffix(scope, "*"))) {
			return true
		}
	}
	return false
}
