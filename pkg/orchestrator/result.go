package orchestrator

import "time"

type Outcome string

const (
	Succeeded            Outcome = "Succeeded"
	SucceededEmptyReport Outcome = "SucceededEmptyReport"
	PrerequisiteFailed   Outcome = "PrerequisiteFailed"
	SubmitFailed         Outcome = "SubmitFailed"
	JobFailed            Outcome = "JobFailed"
	LogFetchFailed       Outcome = "LogFetchFailed"
	UploadFailed         Outcome = "UploadFailed"
)

func (o Outcome) Successful() bool {
	return o == Succeeded || o == SucceededEmptyReport
}

func (o Outcome) ExitCode() int {
	if o.Successful() {
		return 0
	}
	return 1
}

type Result struct {
	Outcome  Outcome
	ExitCode int

	// ReportKey is the object key of the uploaded report, empty if nothing was uploaded.
	ReportKey   string
	ReportBytes int64

	// JobSubmitted is set once the job was applied; JobDeleted once it is known to be gone.
	JobSubmitted bool
	JobDeleted   bool

	Duration time.Duration
	Err      error
}
