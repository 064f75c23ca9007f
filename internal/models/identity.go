// internal/models/identity.go
package models

// Identity is the resolved display identity for a connection. It is supplied by
// the session layer (or synthesized for anonymous guests) and never changes for
// the lifetime of a connection. An empty Email means the identity is anonymous
// and cannot be used for email-based reconnection matching.
type Identity struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Email  string `json:"email,omitempty"`
}
