package credutil

import "strings"

// NormalizeBase64URL canonicalizes a client-submitted base64-ish identifier
// into unpadded base64url: '+' becomes '-', '/' becomes '_' and trailing
// padding is stripped. Empty input returns ok=false instead of an error so
// callers can treat the field as absent. The function is idempotent.
func NormalizeBase64URL(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.TrimRight(s, "=")
	if s == "" {
		return "", false
	}
	return s, true
}

// AuthenticatorResponse carries the binary fields of a WebAuthn ceremony
// response as client-submitted base64 variants.
type AuthenticatorResponse struct {
	ClientDataJSON    string `json:"clientDataJSON,omitempty"`
	AttestationObject string `json:"attestationObject,omitempty"`
	AuthenticatorData string `json:"authenticatorData,omitempty"`
	Signature         string `json:"signature,omitempty"`
	UserHandle        string `json:"userHandle,omitempty"`
	CredentialID      string `json:"credentialId,omitempty"`
	ID                string `json:"id,omitempty"`
	RawID             string `json:"rawId,omitempty"`
}

// PasskeyPayload is a client-submitted passkey ceremony payload before the
// external WebAuthn verifier sees it.
type PasskeyPayload struct {
	CredentialID string                `json:"credentialId,omitempty"`
	ID           string                `json:"id,omitempty"`
	RawID        string                `json:"rawId,omitempty"`
	Type         string                `json:"type,omitempty"`
	Response     AuthenticatorResponse `json:"response"`
}

// NormalizePasskeyPayload rewrites every binary field of a passkey payload
// into canonical unpadded base64url. Fields that are empty stay empty; the
// payload shape is otherwise preserved.
func NormalizePasskeyPayload(p PasskeyPayload) PasskeyPayload {
	norm := func(s string) string {
		v, ok := NormalizeBase64URL(s)
		if !ok {
			return ""
		}
		return v
	}
	p.CredentialID = norm(p.CredentialID)
	p.ID = norm(p.ID)
	p.RawID = norm(p.RawID)
	p.Response.ClientDataJSON = norm(p.Response.ClientDataJSON)
	p.Response.AttestationObject = norm(p.Response.AttestationObject)
	p.Response.AuthenticatorData = norm(p.Response.AuthenticatorData)
	p.Response.Signature = norm(p.Response.Signature)
	p.Response.UserHandle = norm(p.Response.UserHandle)
	p.Response.CredentialID = norm(p.Response.CredentialID)
	p.Response.ID = norm(p.Response.ID)
	p.Response.RawID = norm(p.Response.RawID)
	return p
}

// CredentialIDFromVerifyBody extracts the normalized credential id from a
// verification request body. An explicit credentialId wins, then the
// top-level id and rawId, then the same fields nested under response.
// Returns ok=false when no candidate field carries a usable value.
func CredentialIDFromVerifyBody(body PasskeyPayload) (string, bool) {
	candidates := []string{
		body.CredentialID,
		body.ID,
		body.RawID,
		body.Response.CredentialID,
		body.Response.ID,
		body.Response.RawID,
	}
	for _, c := range candidates {
		if v, ok := NormalizeBase64URL(c); ok {
			return v, true
		}
	}
	return "", false
}
