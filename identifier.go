package kenmon

// Identifier binds an authentication method to a stable external identity
// value. Verifiers produce Identifiers; the orchestrator consumes them to
// look up or create users. Identifiers are not persisted directly - stores
// persist the (type, value) pair as a unique key pointing at a user.
type Identifier struct {
	Type  string         `json:"type"`           // "email-otp", "google-oauth", ...
	Value string         `json:"value"`          // email address, Google subject, ...
	Data  map[string]any `json:"data,omitempty"` // verifier-specific profile attributes
}

// Key returns the consistent unique key for an identifier
func (i *Identifier) Key() string {
	return i.Type + ":" + i.Value
}
