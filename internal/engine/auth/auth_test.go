package auth

import (
	"errors"
	"testing"
)

func TestAllowed(t *testing.T) {
	cases := []struct {
		granted []string
		scope   string
		want    bool
	}{
		{[]string{"*"}, ScopeFactWrite, true},
		{[]string{"fact.*"}, ScopeFactWrite, true},
		{[]string{"fact.*"}, ScopePlan, false},
		{[]string{ScopePlan}, ScopePlan, true},
		{nil, ScopePlan, false},
		{Normalize(nil), ScopeMeetingWrite, true},
	}
	for _, c := range cases {
		if got := Allowed(c.granted, c.scope); got != c.want {
			t.Fatalf("Allowed(%v, %s) = %v, want %v", c.granted, c.scope, got, c.want)
		}
	}
}

func TestRequire(t *testing.T) {
	err := Require([]string{ScopeFactRead}, ScopeFactWrite)
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.Scope != ScopeFactWrite {
		t.Fatalf("expected ForbiddenError for %s, got %v", ScopeFactWrite, err)
	}
	if err := Require([]string{ScopeFactWrite}, ScopeFactWrite); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"*", "agenda.plan", "fact.*", "workstream.write"} {
		if !Valid(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	for _, s := range []string{"", "agenda.delete", "billing.*", "fact"} {
		if Valid(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}
