package models

// Principal is the resolved identity of a request: anonymous, member or
// admin. It is derived from credentials per request and never persisted.
type Principal struct {
	UserID        int64
	IsAdmin       bool
	Authenticated bool
}

// Anonymous is the principal attached to requests without credentials.
var Anonymous = Principal{}

// Owns reports whether the principal is the owner of the reservation.
// Admin status does not imply ownership.
func (p Principal) Owns(r *Reservation) bool {
	return p.Authenticated && r != nil && p.UserID == r.UserID
}

// CanViewPrivate reports whether the principal sees full reservation detail.
func (p Principal) CanViewPrivate(r *Reservation) bool {
	return p.IsAdmin || p.Owns(r)
}
