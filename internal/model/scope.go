package model

// Scope selects which subset of media items a feed tracks: the whole table,
// or a single owner's uploads. The zero value is the global scope.
type Scope struct {
	OwnerID string
}

// GlobalScope covers every media item.
func GlobalScope() Scope { return Scope{} }

// ByOwner covers items uploaded by a single user.
func ByOwner(ownerID string) Scope { return Scope{OwnerID: ownerID} }

// IsGlobal reports whether the scope has no owner filter.
func (s Scope) IsGlobal() bool { return s.OwnerID == "" }

// Key returns a stable string form, used for room keys and log fields.
func (s Scope) Key() string {
	if s.IsGlobal() {
		return "global"
	}
	return "owner:" + s.OwnerID
}
