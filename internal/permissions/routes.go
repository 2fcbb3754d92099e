package permissions

import "strings"

// Definition binds an API route to the minimum role allowed to call it.
type Definition struct {
	Method  string
	Path    string
	MinRole Role
	Module  string
}

// Key returns the lookup key for a method and gin route pattern.
func Key(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(path)
}

// Key returns the lookup key of d.
func (d Definition) Key() string { return Key(d.Method, d.Path) }

var definitions = []Definition{
	{Method: "GET", Path: "/v0/auth/me", MinRole: RoleUser, Module: "auth"},
	{Method: "POST", Path: "/v0/auth/logout", MinRole: RoleUser, Module: "auth"},
	{Method: "PUT", Path: "/v0/auth/password", MinRole: RoleUser, Module: "auth"},
	{Method: "POST", Path: "/v0/auth/register", MinRole: RoleAdmin, Module: "users"},
	{Method: "POST", Path: "/v0/auth/mfa/totp/prepare", MinRole: RoleUser, Module: "auth"},
	{Method: "POST", Path: "/v0/auth/mfa/totp/confirm", MinRole: RoleUser, Module: "auth"},
	{Method: "POST", Path: "/v0/auth/mfa/totp/disable", MinRole: RoleUser, Module: "auth"},
	{Method: "POST", Path: "/v0/auth/mfa/passkey/begin", MinRole: RoleUser, Module: "auth"},
	{Method: "POST", Path: "/v0/auth/mfa/passkey/finish", MinRole: RoleUser, Module: "auth"},
	{Method: "POST", Path: "/v0/auth/mfa/passkey/disable", MinRole: RoleUser, Module: "auth"},

	{Method: "GET", Path: "/v0/users", MinRole: RoleUser, Module: "users"},
	{Method: "GET", Path: "/v0/users/:id", MinRole: RoleUser, Module: "users"},
	{Method: "PUT", Path: "/v0/users/:id", MinRole: RoleAdmin, Module: "users"},
	{Method: "DELETE", Path: "/v0/users/:id", MinRole: RoleAdmin, Module: "users"},

	{Method: "POST", Path: "/v0/balances", MinRole: RoleUser, Module: "balances"},
	{Method: "GET", Path: "/v0/balances", MinRole: RoleUser, Module: "balances"},
	{Method: "GET", Path: "/v0/balances/:userId", MinRole: RoleUser, Module: "balances"},
	{Method: "GET", Path: "/v0/balances/:userId/transactions", MinRole: RoleUser, Module: "balances"},
	{Method: "PUT", Path: "/v0/balances/transactions/:id", MinRole: RoleUser, Module: "balances"},
	{Method: "DELETE", Path: "/v0/balances/transactions/:id", MinRole: RoleUser, Module: "balances"},

	{Method: "POST", Path: "/v0/tokens", MinRole: RoleUser, Module: "tokens"},
	{Method: "GET", Path: "/v0/tokens", MinRole: RoleUser, Module: "tokens"},
	{Method: "PUT", Path: "/v0/tokens/confirm", MinRole: RoleUser, Module: "tokens"},
	{Method: "GET", Path: "/v0/tokens/user/:userId", MinRole: RoleUser, Module: "tokens"},
	{Method: "PUT", Path: "/v0/tokens/:id", MinRole: RoleUser, Module: "tokens"},
	{Method: "DELETE", Path: "/v0/tokens/:id", MinRole: RoleUser, Module: "tokens"},

	{Method: "POST", Path: "/v0/bedash", MinRole: RoleUser, Module: "bedash"},
	{Method: "GET", Path: "/v0/bedash", MinRole: RoleUser, Module: "bedash"},
	{Method: "PUT", Path: "/v0/bedash/:id/complete", MinRole: RoleAdmin, Module: "bedash"},

	{Method: "GET", Path: "/v0/settings", MinRole: RoleAdmin, Module: "settings"},
	{Method: "PUT", Path: "/v0/settings/:key", MinRole: RoleSuperAdmin, Module: "settings"},
}

// Definitions returns a copy of every authenticated route definition.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap indexes Definitions by Key.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key()] = def
	}
	return out
}
