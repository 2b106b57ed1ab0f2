// Package permissions holds the credential type, the per-session rights
// summary, and the pure rules deciding who may edit which entity.
package permissions

import "github.com/wikicampus/wikicampus/internal/common"

// Credential is a username/password pair supplied per request. It is never
// persisted; Clear wipes it on logout or failed login.
type Credential struct {
	Username string
	Password string
}

// IsAuthenticated reports whether both fields are non-empty. A credential
// with either field empty is treated as anonymous.
func (c Credential) IsAuthenticated() bool {
	return c.Username != "" && c.Password != ""
}

// Clear resets both fields.
func (c *Credential) Clear() {
	c.Username = ""
	c.Password = ""
}

// IsDemoAccount reports whether the credential belongs to the shared
// demonstration identity. Mutations from it are refused by the
// authorization entry rule.
func IsDemoAccount(c Credential) bool {
	return c.Username == common.DemoUsername
}
