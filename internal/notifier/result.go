package notifier

import "encoding/json"

// NotificationResult is the outcome of one notify call
type NotificationResult struct {
	successful bool
	url        string
	message    string
}

// NewResult creates a result
func NewResult(successful bool, url, message string) NotificationResult {
	return NotificationResult{successful: successful, url: url, message: message}
}

// Successful reports whether Jenkins answered with "Scheduled"
func (r NotificationResult) Successful() bool { return r.successful }

// URL returns the notifyCommit URL, empty when it could not be built
func (r NotificationResult) URL() string { return r.url }

// Message returns the Jenkins response or the failure description
func (r NotificationResult) Message() string { return r.message }

type resultJSON struct {
	Successful bool    `json:"successful"`
	URL        *string `json:"url"`
	Message    string  `json:"message"`
}

// MarshalJSON renders the result with a null url when none was built
func (r NotificationResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{Successful: r.successful, Message: r.message}
	if r.url != "" {
		out.URL = &r.url
	}
	return json.Marshal(out)
}
