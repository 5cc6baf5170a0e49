// Package model defines the core data types for the research analyst.
// Requests, provider responses and display results are plain structs; the
// only thing persisted is the AnalysisCall log used for cost monitoring.
package model

import "strings"

// TaskType is the kind of financial-content analysis requested.
// Go doesn't have enums, so these are typed string constants.
type TaskType string

const (
	TaskTranscript TaskType = "transcript" // earnings call transcript, fetched by ticker
	TaskPodcast    TaskType = "podcast"    // uploaded audio
	TaskVideo      TaskType = "video"      // YouTube (or other hosted) video URL
	TaskImage      TaskType = "image"      // uploaded image
	TaskChart      TaskType = "chart"      // uploaded chart image, or a ticker to chart
)

// AllTaskTypes is the closed list of task types. Anything that dispatches on
// TaskType is expected to handle every entry.
var AllTaskTypes = []TaskType{TaskTranscript, TaskPodcast, TaskVideo, TaskImage, TaskChart}

// ParseTaskType converts user input into a TaskType.
func ParseTaskType(s string) (TaskType, bool) {
	t := TaskType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTaskTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Mode selects what the model is asked to produce.
type Mode string

const (
	// ModeSummary asks for a markdown report.
	ModeSummary Mode = "summary"
	// ModeCompanies asks for the companies mentioned, with a sentiment score each.
	ModeCompanies Mode = "companies"
)

// ParseMode converts user input into a Mode. Empty input means ModeSummary.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSummary:
		return ModeSummary, true
	case ModeCompanies:
		return ModeCompanies, true
	default:
		return "", false
	}
}

// InputKind is the shape of the user-supplied payload.
type InputKind string

const (
	KindMedia  InputKind = "media"  // raw bytes with a MIME type
	KindURL    InputKind = "url"    // a link to hosted media
	KindTicker InputKind = "ticker" // a stock symbol
)
