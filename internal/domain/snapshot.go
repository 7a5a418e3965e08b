package domain

import "time"

// ResourceUsage holds host utilisation percentages.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskPath      string  `json:"disk_path"`
}

// SecurityCounts maps a source (IP, user) to the number of events seen in
// the current window.
type SecurityCounts map[string]int

// SystemSnapshot is the read-only view evaluators inspect each cycle.
type SystemSnapshot struct {
	TakenAt        time.Time         `json:"taken_at"`
	Resources      *ResourceUsage    `json:"resources,omitempty"`
	Services       map[string]bool   `json:"services"`
	AuthFailures   SecurityCounts    `json:"auth_failures"`
	IntrusionHits  SecurityCounts    `json:"intrusion_hits"`
	SecurityWindow time.Duration     `json:"security_window"`
	LatestBackups  map[string]*Task  `json:"latest_backups"`
	Certificates   []SslCertificate  `json:"certificates"`
	Errors         map[string]string `json:"errors,omitempty"`
}
