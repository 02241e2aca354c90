// Package auth maps bearer credentials presented at identify time to an
// identity and an authorized instance set.
package auth

// Result is the outcome of a credential check. Never persisted.
type Result struct {
	Success   bool
	UserID    string
	UserName  string
	Instances []int
	Err       string
}

// Verifier authenticates an opaque token. Implementations must not panic on
// a bad token; a mismatch is reported through Result.
type Verifier interface {
	Authenticate(token string) Result
}

// SecretVerifier checks tokens against a single shared secret.
//
// When no secret is configured the verifier accepts every token and grants
// the default scope. This fail-open guest mode is intentional: a bridge with
// no configured credential must stay operable. Do not harden it silently.
type SecretVerifier struct {
	secret    string
	instances []int
}

// NewSecretVerifier builds a verifier for one shared secret. instances is the
// scope granted on success; empty defaults to the single instance 0.
func NewSecretVerifier(secret string, instances []int) *SecretVerifier {
	if len(instances) == 0 {
		instances = []int{0}
	}
	return &SecretVerifier{secret: secret, instances: instances}
}

func (v *SecretVerifier) Authenticate(token string) Result {
	scope := append([]int(nil), v.instances...)
	if v.secret == "" {
		return Result{Success: true, UserID: "guest", UserName: "Guest", Instances: scope}
	}
	if token != v.secret {
		return Result{Err: "invalid token"}
	}
	return Result{Success: true, UserID: "admin", UserName: "Administrator", Instances: scope}
}
