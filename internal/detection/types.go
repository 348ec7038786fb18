// Package detection drives asynchronous Rekognition Video label detection
// jobs through submission, polling and result finalization.
package detection

import (
	"encoding/json"
	"fmt"

	rtypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// JobStatus is the remote status of a detection job.
type JobStatus string

const (
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusSucceeded  JobStatus = "SUCCEEDED"
	StatusFailed     JobStatus = "FAILED"
	StatusUnknown    JobStatus = "UNKNOWN"
)

// Terminal reports whether no further polling can change the status.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Location identifies the analysed video.
type Location struct {
	Bucket string `json:"video_s3_bucket"`
	Key    string `json:"video_s3_key"`
}

// NotificationChannel asks Rekognition to publish completion to SNS.
type NotificationChannel struct {
	TopicARN string
	RoleARN  string
}

// Job is the handle returned by Submit. Its status is IN_PROGRESS when
// created and is never updated; polling returns a fresh StatusReport.
type Job struct {
	ID     string    `json:"job_id"`
	Status JobStatus `json:"status"`
	Location
}

// StatusReport is the verbatim state of a job.
type StatusReport struct {
	JobStatus     JobStatus               `json:"JobStatus"`
	StatusMessage string                  `json:"StatusMessage"`
	VideoMetadata json.RawMessage         `json:"VideoMetadata"`
	Labels        []rtypes.LabelDetection `json:"Labels"`
}

// FailedReport is reported by the check step when polling itself fails.
func FailedReport(err error) StatusReport {
	return StatusReport{
		JobStatus:     StatusFailed,
		StatusMessage: err.Error(),
		VideoMetadata: json.RawMessage(`{}`),
		Labels:        []rtypes.LabelDetection{},
	}
}

// Label is one normalized detection. Timestamp is in seconds; a raw
// timestamp of 0 is indistinguishable from an absent one and yields nil.
type Label struct {
	Name       string            `json:"name"`
	Confidence float64           `json:"confidence"`
	Timestamp  *float64          `json:"timestamp"`
	Instances  []rtypes.Instance `json:"instances"`
}

// TopLabel is a label as listed in a Summary.
type TopLabel struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Summary condenses an Analysis.
type Summary struct {
	TotalLabels         int        `json:"total_labels"`
	TopLabels           []TopLabel `json:"top_labels"`
	Duration            *float64   `json:"duration"`
	HasModerationIssues bool       `json:"has_moderation_issues"`
}

// Analysis is the normalized result of a succeeded job.
type Analysis struct {
	Location
	Duration        *float64          `json:"duration"`
	Labels          []Label           `json:"labels"`
	ModerationFlags []json.RawMessage `json:"moderation_labels"`
	Summary         Summary           `json:"summary"`
}

// JobNotSucceededError is returned by Finalize when the job ended in any
// status other than SUCCEEDED. It is never retried. Message is the job's
// status message as reported, empty included; "Unknown error" stands in only
// when the response carries none.
type JobNotSucceededError struct {
	JobID   string
	Status  JobStatus
	Message string
}

func (e *JobNotSucceededError) Error() string {
	return fmt.Sprintf("rekognition job %s did not succeed (%s): %s", e.JobID, e.Status, e.Message)
}
