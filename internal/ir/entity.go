package ir

import "slices"

// Entity is a snapshot of a persisted record. The store owns the record;
// everything else only reads snapshots.
type Entity struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"` // Empty until the entity is created
	Attrs Object `json:"attrs"`
	Seq   int64  `json:"seq"` // Logical clock value of the last write
}

// HasID reports whether the entity has been assigned an identity.
func (e Entity) HasID() bool {
	return e.ID != ""
}

// Clone returns a snapshot whose attribute map can be modified freely.
func (e Entity) Clone() Entity {
	e.Attrs = e.Attrs.Clone()
	return e
}

// Attr returns the named attribute, or Null when absent.
func (e Entity) Attr(name string) Value {
	if v, ok := e.Attrs[name]; ok && v != nil {
		return v
	}
	return Null{}
}

// ChangeRecord is the set of fields a mutation changes and their values
// before the mutation. It is produced once per mutation and passed alongside
// the entity to the notification round; it is never stored.
//
// Invariant: Changed == SortedKeys(Previous).
type ChangeRecord struct {
	Changed  []string `json:"changes"`
	Previous Object   `json:"previous_values"`
}

// NewChangeRecord builds a record from previous values, deriving Changed.
func NewChangeRecord(previous Object) ChangeRecord {
	if len(previous) == 0 {
		return ChangeRecord{}
	}
	changed := make([]string, 0, len(previous))
	for k := range previous {
		changed = append(changed, k)
	}
	slices.Sort(changed)
	return ChangeRecord{Changed: changed, Previous: previous}
}

// Empty reports whether no field changed.
func (c ChangeRecord) Empty() bool {
	return len(c.Changed) == 0
}

// Mutation actions. Group names and pushed events use these spellings.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)
