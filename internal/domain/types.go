package domain

// JobStatus tracks each stage of a single conversion job.
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusStaging    JobStatus = "staging"
	JobStatusConverting JobStatus = "converting"
	JobStatusExporting  JobStatus = "exporting"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// ConversionOptions are the user selections driving one conversion.
// Any combination is accepted; values outside the supported sets
// degrade to engine defaults instead of failing.
type ConversionOptions struct {
	TargetFormat string `json:"targetFormat"`
	SampleRate   int    `json:"sampleRate"`
	BitDepth     int    `json:"bitDepth"`
}

// Settings contains user-selectable runtime configuration, including
// the last-used conversion options.
type Settings struct {
	OutputDir    string `json:"outputDir"`
	TargetFormat string `json:"targetFormat"`
	SampleRate   int    `json:"sampleRate"`
	BitDepth     int    `json:"bitDepth"`
}

// Options returns the conversion options embedded in the settings.
func (s Settings) Options() ConversionOptions {
	return ConversionOptions{
		TargetFormat: s.TargetFormat,
		SampleRate:   s.SampleRate,
		BitDepth:     s.BitDepth,
	}
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}
