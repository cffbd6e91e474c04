// Package model defines data structures for the knowledge-graph server.
//
// All persisted timestamps are UNIX seconds. JSON field names follow the
// public API surface (camelCase).
package model

// User is a chat participant, identified by an opaque client-supplied id.
type User struct {
	ID            string `json:"id"`
	ConsentGlobal bool   `json:"consentGlobal"`
	CreatedAt     int64  `json:"createdAt"`
}

// AnonymousUserID is the reserved owner for insights whose conversation was
// removed from the user's graph. Rows rewritten to this id stay readable in
// the global scope.
const AnonymousUserID = "anonymous"
