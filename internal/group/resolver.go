package group

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/bindery/internal/ir"
)

// InterestFunc names the users interested in e for action, beyond the
// broadcast and per-entity groups.
type InterestFunc func(ctx context.Context, e ir.Entity, action string) ([]string, error)

// NoInterest is the default interest predicate: nobody.
func NoInterest(context.Context, ir.Entity, string) ([]string, error) {
	return nil, nil
}

// Resolver computes group sets for one resource type.
type Resolver struct {
	resource string
	interest InterestFunc
}

// NewResolver creates a resolver. A nil interest means NoInterest.
func NewResolver(resource string, interest InterestFunc) *Resolver {
	if interest == nil {
		interest = NoInterest
	}
	return &Resolver{resource: resource, interest: interest}
}

// Resolve returns every group e belongs to for action:
//   - (T, A) always
//   - (T, A, id) when e has an id
//   - (T, A, user) and (T, A, id, user) for each interested user
//
// If the interest predicate fails, only the user-scoped groups are
// omitted; the broadcast and per-entity groups are still returned.
func (r *Resolver) Resolve(ctx context.Context, e ir.Entity, action string) Set {
	set := NewSet(Broadcast(r.resource, action))
	if e.HasID() {
		set.Add(Detail(r.resource, action, e.ID))
	}

	users, err := r.interest(ctx, e, action)
	if err != nil {
		slog.Warn("interest lookup failed, skipping user groups",
			"resource", r.resource,
			"action", action,
			"id", e.ID,
			"error", err,
		)
		return set
	}

	for _, u := range users {
		if u == "" {
			continue
		}
		set.Add(ID{Resource: r.resource, Action: action, User: u})
		if e.HasID() {
			set.Add(ID{Resource: r.resource, Action: action, Entity: e.ID, User: u})
		}
	}
	return set
}

// PreMutation returns the groups of the before-image. A create has none,
// since the entity did not exist.
func (r *Resolver) PreMutation(ctx context.Context, before ir.Entity, action string) Set {
	if action == ir.ActionCreate {
		return Set{}
	}
	return r.Resolve(ctx, before, action)
}

// PostMutation returns the groups of the after-image. A delete has none,
// since the entity no longer exists.
func (r *Resolver) PostMutation(ctx context.Context, after ir.Entity, action string) Set {
	if action == ir.ActionDelete {
		return Set{}
	}
	return r.Resolve(ctx, after, action)
}

// FieldInterest returns an interest predicate reading user names from the
// given attributes. A string attribute names one user; an array attribute
// names one user per string element. Null or mis-typed attributes
// contribute nobody. The result is sorted and deduplicated.
func FieldInterest(fields []string) InterestFunc {
	return func(_ context.Context, e ir.Entity, _ string) ([]string, error) {
		var users []string
		for _, f := range fields {
			switch v := e.Attr(f).(type) {
			case ir.String:
				users = append(users, string(v))
			case ir.Array:
				for _, elem := range v {
					if s, ok := elem.(ir.String); ok {
						users = append(users, string(s))
					}
				}
			}
		}
		slices.Sort(users)
		return slices.Compact(users), nil
	}
}
