// Package cluster is the orchestrator's view of the Kubernetes control plane:
// the handful of declarative and read operations it needs for one Job.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	batchv1 "k8s.io/api/batch/v1"

	"github.com/werf/scanjob/pkg/tracker/job"
)

var (
	ErrJobFailed = errors.New("job failed")
	ErrNoPods    = errors.New("no pods found for job")
)

// Ref identifies the Job resource.
type Ref struct {
	Name      string
	Namespace string
}

func (r Ref) String() string {
	return fmt.Sprintf("job/%s in namespace %s", r.Name, r.Namespace)
}

type LogOptions struct {
	// TailLines limits the output to the last N lines. Nil means the whole log.
	TailLines *int64
}

type DeleteOptions struct {
	IgnoreNotFound bool
}

type Client interface {
	Ping(ctx context.Context) error
	Apply(ctx context.Context, job *batchv1.Job) error
	// Wait blocks until the job is complete (nil error), failed (ErrJobFailed)
	// or timeout elapses (tracker.ErrTrackTimeout).
	Wait(ctx context.Context, ref Ref, timeout time.Duration) (job.JobStatus, error)
	Logs(ctx context.Context, ref Ref, opts LogOptions) (io.ReadCloser, error)
	Delete(ctx context.Context, ref Ref, opts DeleteOptions) error
	Exists(ctx context.Context, ref Ref) (bool, error)
	Events(ctx context.Context, ref Ref) ([]string, error)
}
