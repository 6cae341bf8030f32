package pubcover

import (
	"time"

	"github.com/eringen/pubcover/publish"
)

// Post is a row of the pubengine posts table. Only published posts get covers.
type Post struct {
	Slug      string
	Title     string
	Date      string
	Tags      []string
	Summary   string
	Content   string
	Published bool
}

// Asset is a stored cover as held by the asset server.
type Asset struct {
	ID          string
	Hash        string
	ContentType string
	Metadata    publish.Metadata
	Size        int64
	UpdatedAt   time.Time
}

// RunEntry is one item outcome recorded in the run history.
type RunEntry struct {
	RunID    string    `json:"run_id"`
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Status   string    `json:"status"`
	Hash     string    `json:"hash,omitempty"`
	Size     int       `json:"size"`
	Error    string    `json:"error,omitempty"`
	Recorded time.Time `json:"recorded_at"`
}
