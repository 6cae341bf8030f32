package views

import "time"

// AssetRow is one stored cover in the index table.
type AssetRow struct {
	ID          string
	Hash        string
	ContentType string
	Size        int64
	UpdatedAt   time.Time
}

// RunRow is one recent batch item in the index table.
type RunRow struct {
	RunID    string
	ID       string
	Status   string
	Error    string
	Recorded time.Time
}
