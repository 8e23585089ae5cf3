package domain

// ScanPhase is the orchestrator state.
type ScanPhase string

// Scan phases.
const (
	ScanPhaseIdle            ScanPhase = "idle"
	ScanPhaseScanningContent ScanPhase = "scanning_content"
	ScanPhaseCheckingURLs    ScanPhase = "checking_urls"
)

// ScanProgress is the transient progress record of the running scan.
type ScanProgress struct {
	TotalDocuments     int       `json:"total_documents"`
	ProcessedDocuments int       `json:"processed_documents"`
	TotalURLs          int       `json:"total_urls"`
	ProcessedURLs      int       `json:"processed_urls"`
	Phase              ScanPhase `json:"phase"`
}

// ScanStatus is returned by get_scan_status.
type ScanStatus struct {
	IsScanning bool          `json:"is_scanning"`
	Progress   *ScanProgress `json:"progress"`
}

// DocumentBatchResult is returned by scan_documents_batch.
type DocumentBatchResult struct {
	ProcessedCount int  `json:"processed_count"`
	HasMore        bool `json:"has_more"`
	NextOffset     int  `json:"next_offset"`
}

// URLBatchResult is returned by check_urls_batch.
type URLBatchResult struct {
	CheckedCount int  `json:"checked_count"`
	HasMore      bool `json:"has_more"`
}
