package queue

import "fmt"

// Lane is a named channel for one category of job.
type Lane string

const (
	LaneContentAnalysis      Lane = "content-analysis"
	LaneArchival             Lane = "archival"
	LaneSuggestionGeneration Lane = "suggestion-generation"
	LaneBulkImport           Lane = "bulk-import"
)

// Lanes lists every lane the dispatcher knows about.
var Lanes = []Lane{
	LaneContentAnalysis,
	LaneArchival,
	LaneSuggestionGeneration,
	LaneBulkImport,
}

func (l Lane) Valid() bool {
	for _, known := range Lanes {
		if l == known {
			return true
		}
	}
	return false
}

// Topic is the broker subject jobs of this lane are published on.
func (l Lane) Topic() string {
	return fmt.Sprintf("jobs.%s", l)
}

func (l Lane) String() string {
	return string(l)
}
