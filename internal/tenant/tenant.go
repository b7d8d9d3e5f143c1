// Package tenant carries the tenant partition that every credential, token
// and connection lookup is scoped to.
package tenant

import (
	"context"
	"fmt"
	"regexp"
)

// Context identifies the tenant a request operates in. The zero value is the
// "no tenant" partition used by single-tenant deployments.
type Context struct {
	id string
}

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// None returns the single-tenant partition.
func None() Context { return Context{} }

// New returns the partition for the given tenant id. An empty id is the same
// as None.
func New(id string) (Context, error) {
	if id == "" {
		return Context{}, nil
	}
	if !validID.MatchString(id) {
		return Context{}, fmt.Errorf("invalid tenant id %q", id)
	}
	return Context{id: id}, nil
}

// MustNew is New for ids known at compile time or already validated.
func MustNew(id string) Context {
	t, err := New(id)
	if err != nil {
		panic(err)
	}
	return t
}

// ID returns the stored tenant id, "" for None.
func (c Context) ID() string { return c.id }

// IsNone reports whether c is the single-tenant partition.
func (c Context) IsNone() bool { return c.id == "" }

func (c Context) String() string {
	if c.id == "" {
		return "(none)"
	}
	return c.id
}

type ctxKey struct{}

// With attaches t to ctx.
func With(ctx context.Context, t Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// From returns the tenant stored in ctx and whether one was set.
func From(ctx context.Context) (Context, bool) {
	t, ok := ctx.Value(ctxKey{}).(Context)
	return t, ok
}
