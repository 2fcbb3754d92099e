package settings

// DB-backed setting keys and their defaults.
const (
	// SiteNameKey is the display name used as TOTP issuer and in the UI.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is used when SITE_NAME is unset.
	DefaultSiteName = "Flyash Dashboard"
	// RatePerTonKey overrides the configured price of one ton.
	RatePerTonKey = "RATE_PER_TON"
	// RevokedTokenRetentionHoursKey keeps expired revocations around for this many hours.
	RevokedTokenRetentionHoursKey = "REVOKED_TOKEN_RETENTION_HOURS"
	// DefaultRevokedTokenRetentionHours deletes revocations as soon as they expire.
	DefaultRevokedTokenRetentionHours = 0
	// WebAuthnRPIDKey sets the passkey relying party ID.
	WebAuthnRPIDKey = "WEB_AUTHN_RPID"
	// WebAuthnRPNameKey sets the passkey relying party display name.
	WebAuthnRPNameKey = "WEB_AUTHN_RP_NAME"
	// WebAuthnOriginsKey lists the browser origins allowed to run passkey ceremonies.
	WebAuthnOriginsKey = "WEB_AUTHN_ORIGINS"
)

// KnownKeys lists the settings the API accepts writes for.
func KnownKeys() []string {
	return []string{
		SiteNameKey,
		RatePerTonKey,
		RevokedTokenRetentionHoursKey,
		WebAuthnRPIDKey,
		WebAuthnRPNameKey,
		WebAuthnOriginsKey,
	}
}

// IsKnownKey reports whether key is one of KnownKeys.
func IsKnownKey(key string) bool {
	for _, k := range KnownKeys() {
		if k == key {
			return true
		}
	}
	return false
}
