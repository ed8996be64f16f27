package api

import "encoding/json"

// UserData carries the per-request credentials the UI attaches to every
// control-plane call. It is copied into each transfer at creation time and
// is immutable afterwards.
type UserData struct {
	// FarmHost is the base URL of the user's private farm
	FarmHost string

	// APIToken authenticates against the R2 worker
	APIToken string

	// QMAuthToken authenticates against the queue manager (optional)
	QMAuthToken string
}

// MarshalJSON redacts tokens. UserData ends up inside transfer snapshots
// served to the UI; full tokens must never leave the daemon again.
func (u UserData) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"farm_host":     u.FarmHost,
		"api_token":     redact(u.APIToken),
		"qm_auth_token": redact(u.QMAuthToken),
	})
}

func redact(token string) string {
	if len(token) <= 10 {
		return "..."
	}
	return token[:10] + "..."
}
