package model

// Session identifies the authenticated user for a single request. It is
// passed explicitly into operations that need an owner; there is no ambient
// session lookup anywhere in the codebase.
type Session struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}
