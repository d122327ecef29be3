// Package permission carries explicit capability grants through a context.
//
// Host lookups that need more than the caller's ambient permission (reading hook
// settings, resolving SSH clone URLs) run under a grant made with With, and the
// service performing the lookup checks it with Require.
package permission

import (
	"context"
	"errors"
	"fmt"
)

// ErrDenied is returned when a required grant is missing
var ErrDenied = errors.New("permission denied")

// Permission is a capability level. Higher levels imply lower ones.
type Permission int

const (
	None Permission = iota
	RepoRead
	RepoWrite
	RepoAdmin
)

func (p Permission) String() string {
	switch p {
	case RepoRead:
		return "REPO_READ"
	case RepoWrite:
		return "REPO_WRITE"
	case RepoAdmin:
		return "REPO_ADMIN"
	default:
		return "NONE"
	}
}

type grantKey struct{}

type grant struct {
	perm   Permission
	reason string
}

// With returns a context carrying a grant of p. The reason is kept for error messages.
func With(ctx context.Context, p Permission, reason string) context.Context {
	if current, ok := ctx.Value(grantKey{}).(grant); ok && current.perm >= p {
		return ctx
	}
	return context.WithValue(ctx, grantKey{}, grant{perm: p, reason: reason})
}

// Has reports whether ctx carries a grant of at least p
func Has(ctx context.Context, p Permission) bool {
	g, ok := ctx.Value(grantKey{}).(grant)
	return ok && g.perm >= p
}

// Require returns ErrDenied unless ctx carries a grant of at least p
func Require(ctx context.Context, p Permission) error {
	if Has(ctx, p) {
		return nil
	}
	return fmt.Errorf("%w: %s required", ErrDenied, p)
}

// Do runs fn under a grant of p
func Do[T any](ctx context.Context, p Permission, reason string, fn func(context.Context) (T, error)) (T, error) {
	return fn(With(ctx, p, reason))
}
