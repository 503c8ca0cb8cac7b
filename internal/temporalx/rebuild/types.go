// Package rebuild runs a full search-index rebuild as a Temporal workflow.
package rebuild

import "time"

const (
	WorkflowName    = "search_index_rebuild"
	ActivityRebuild = "search_index_rebuild_activity"

	// WorkflowID is fixed so only one rebuild runs at a time.
	WorkflowID = "search-index-rebuild"
)

type Result struct {
	Index     string        `json:"index"`
	Contexts  int           `json:"contexts"`
	Documents int64         `json:"documents"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}
