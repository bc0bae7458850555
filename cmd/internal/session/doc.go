// Package session issues and validates browser sessions for UniDash.
//
// Tokens are opaque random strings handed to the client in an HttpOnly cookie;
// only their SHA-256 (or HMAC-SHA-256, when a server key is configured) hash
// is ever stored.
package session
