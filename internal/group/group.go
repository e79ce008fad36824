// Package group derives the interest groups an entity belongs to.
//
// A group is named by (resource, action, optional entity id, optional user)
// and rendered as "<resource>-<action>[-<id>][-<user>]". The textual form is
// persisted in the subscriptions table and must stay stable.
package group

import (
	"slices"
	"strings"
)

// ID identifies one interest group.
type ID struct {
	Resource string
	Action   string
	Entity   string // Empty for resource-wide groups
	User     string // Empty for groups not scoped to a user
}

// String renders the external textual form.
func (g ID) String() string {
	parts := []string{g.Resource, g.Action}
	if g.Entity != "" {
		parts = append(parts, g.Entity)
	}
	if g.User != "" {
		parts = append(parts, g.User)
	}
	return strings.Join(parts, "-")
}

// Broadcast returns the group of everyone watching all entities of resource
// for action.
func Broadcast(resource, action string) ID {
	return ID{Resource: resource, Action: action}
}

// Detail returns the group of everyone watching one entity for action.
func Detail(resource, action, entity string) ID {
	return ID{Resource: resource, Action: action, Entity: entity}
}

// Set is a set of groups keyed by textual form.
type Set map[string]ID

// NewSet builds a set from ids.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id.
func (s Set) Add(id ID) {
	s[id.String()] = id
}

// Has reports membership.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Minus returns the groups in s but not in other.
func (s Set) Minus(other Set) Set {
	out := make(Set)
	for k, v := range s {
		if !other.Has(k) {
			out[k] = v
		}
	}
	return out
}

// Intersect returns the groups in both s and other.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for k, v := range s {
		if other.Has(k) {
			out[k] = v
		}
	}
	return out
}

// Union returns the groups in either set.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Names returns the textual forms in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
