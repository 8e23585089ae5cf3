package domain

// CheckResult is the outcome of probing one URL.
type CheckResult struct {
	Status         LinkStatus `json:"status"`
	Code           *int       `json:"code"`
	FinalURL       string     `json:"final_url"`
	RedirectCount  int        `json:"redirect_count"`
	ErrorKind      *ErrorKind `json:"error_kind"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ResponseTimeMS int        `json:"response_time_ms"`
}
