package tracker

import (
	"context"
	"errors"
	"time"

	"k8s.io/client-go/kubernetes"
)

var (
	ErrTrackTimeout    = errors.New("timed out tracking resource")
	ErrResourceDeleted = errors.New("resource deleted while tracking")
	StopTrack          = errors.New("stop tracking now")
)

const (
	Initial           TrackerState = "Initial"
	ResourceAdded     TrackerState = "ResourceAdded"
	ResourceSucceeded TrackerState = "ResourceSucceeded"
	ResourceFailed    TrackerState = "ResourceFailed"
	ResourceDeleted   TrackerState = "ResourceDeleted"
)

type TrackerState string

type Tracker struct {
	Kube             kubernetes.Interface
	Namespace        string
	ResourceName     string
	FullResourceName string // full resource name with resource kind (job/kube-bench)
	StatusGeneration uint64
}

type Options struct {
	ParentContext context.Context
	Timeout       time.Duration
}

// Context returns the tracking context bounded by Timeout (zero means no bound).
func (opts Options) Context() (context.Context, context.CancelFunc) {
	parent := opts.ParentContext
	if parent == nil {
		parent = context.Background()
	}

	if opts.Timeout > 0 {
		return context.WithTimeout(parent, opts.Timeout)
	}

	return context.WithCancel(parent)
}
