// Package auth issues and validates API access tokens.
//
// Clients exchange the configured API key for a short-lived HS256 JWT
// and present it as a bearer token. Roles map to a static permission
// table; there is no user database.
package auth
