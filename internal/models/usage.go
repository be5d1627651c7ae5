package models

import "time"

// UsageSnapshot represents subscription consumption at a point in time.
// It is replaced wholesale on every poll.
type UsageSnapshot struct {
	PlanName    string     `json:"plan_name"`
	QueriesUsed int64      `json:"queries_used"`
	TotalLimit  int64      `json:"total_limit"`
	RenewsAt    *time.Time `json:"renews_at,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// TableImport holds the imported row count for one registry table.
type TableImport struct {
	Table   string `json:"table"`
	Records int64  `json:"records"`
}

// ImportStats summarises the dataset loaded by previous ETL runs.
// The engine may not have any before the first run.
type ImportStats struct {
	Tables       []TableImport `json:"tables"`
	TotalRecords int64         `json:"total_records"`
	LastImportAt *time.Time    `json:"last_import_at,omitempty"`
}

// UpdateInfo reports whether a newer registry release is available upstream.
type UpdateInfo struct {
	UpdateAvailable bool      `json:"update_available"`
	CurrentRelease  string    `json:"current_release,omitempty"`
	LatestRelease   string    `json:"latest_release,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// User is the authenticated console operator.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"is_admin"`
}
