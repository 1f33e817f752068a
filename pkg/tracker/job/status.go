package job

import (
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/duration"

	"github.com/werf/scanjob/pkg/utils"
)

type JobStatus struct {
	batchv1.JobStatus

	StatusGeneration uint64

	Duration string
	Age      string

	WaitingForMessages []string

	IsSucceeded  bool
	IsFailed     bool
	FailedReason string
}

func NewJobStatus(object *batchv1.Job, statusGeneration uint64) JobStatus {
	res := JobStatus{
		JobStatus:        object.Status,
		StatusGeneration: statusGeneration,
		Age:              utils.TranslateTimestampSince(object.CreationTimestamp),
	}

	switch {
	case res.StartTime == nil:
	case res.CompletionTime == nil:
		res.Duration = duration.HumanDuration(time.Since(res.StartTime.Time))
	default:
		res.Duration = duration.HumanDuration(res.CompletionTime.Sub(res.StartTime.Time))
	}

	for _, c := range object.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}

		switch c.Type {
		case batchv1.JobComplete:
			res.IsSucceeded = true
		case batchv1.JobFailed:
			if !res.IsFailed {
				res.IsFailed = true
				res.FailedReason = failedReason(c)
			}
		}
	}

	// A job can report both when a success policy kicks in after a pod failure.
	if res.IsSucceeded {
		res.IsFailed = false
		res.FailedReason = ""
	}

	if !res.IsSucceeded && !res.IsFailed {
		res.WaitingForMessages = append(res.WaitingForMessages, fmt.Sprintf("condition %s->%s", batchv1.JobComplete, corev1.ConditionTrue))

		target := int32(1)
		if object.Spec.Completions != nil {
			target = *object.Spec.Completions
		}
		res.WaitingForMessages = append(res.WaitingForMessages, fmt.Sprintf("succeeded %d->%d", object.Status.Succeeded, target))
	}

	return res
}

func failedReason(c batchv1.JobCondition) string {
	switch {
	case c.Reason != "" && c.Message != "":
		return fmt.Sprintf("%s: %s", c.Reason, c.Message)
	case c.Reason != "":
		return c.Reason
	case c.Message != "":
		return c.Message
	default:
		return "job failed"
	}
}
