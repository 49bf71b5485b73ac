package identity

// EmailStatus is the enrollment classification of a submitted address.
type EmailStatus string

const (
	// SystemInit: no identities exist yet; the next successful
	// enrollment bootstraps the system and creates the primary admin.
	SystemInit EmailStatus = "SYSTEM_INIT"

	// Unknown: the address is not provisioned. There is no self-service
	// signup, so this is an access denial.
	Unknown EmailStatus = "UNKNOWN"

	// KnownNoMFA: an administrator pre-provisioned this identity; the
	// user must complete first-time TOTP enrollment.
	KnownNoMFA EmailStatus = "KNOWN_NO_MFA"

	// KnownWithMFA: the identity is fully enrolled and goes straight to
	// code verification.
	KnownWithMFA EmailStatus = "KNOWN_WITH_MFA"
)

// Classify maps an email address onto its enrollment status given the
// current identity snapshot. Pure function of its inputs: no mutation,
// no caching. Callers must re-classify on every address submission with
// a fresh snapshot.
func Classify(email string, identities []Identity) EmailStatus {
	if len(identities) == 0 {
		return SystemInit
	}

	id, ok := Find(email, identities)
	if !ok {
		return Unknown
	}

	if id.Enrolled() {
		return KnownWithMFA
	}
	return KnownNoMFA
}
