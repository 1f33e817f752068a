package job

import (
	"sync"

	"k8s.io/client-go/kubernetes"

	"github.com/werf/scanjob/pkg/tracker"
)

type Feed interface {
	OnAdded(func() error)
	OnSucceeded(func() error)
	OnFailed(func(reason string) error)
	OnStatus(func(JobStatus) error)

	GetStatus() JobStatus
	Track(name, namespace string, kube kubernetes.Interface, opts tracker.Options) error
}

func NewFeed() Feed {
	return &feed{}
}

type feed struct {
	OnAddedFunc     func() error
	OnSucceededFunc func() error
	OnFailedFunc    func(string) error
	OnStatusFunc    func(JobStatus) error

	statusMux sync.Mutex
	status    JobStatus
}

func (f *feed) OnAdded(function func() error) {
	f.OnAddedFunc = function
}

func (f *feed) OnSucceeded(function func() error) {
	f.OnSucceededFunc = function
}

func (f *feed) OnFailed(function func(string) error) {
	f.OnFailedFunc = function
}

func (f *feed) OnStatus(function func(JobStatus) error) {
	f.OnStatusFunc = function
}

// Track blocks until the job succeeds, fails, a callback stops tracking or
// the options timeout elapses (tracker.ErrTrackTimeout).
func (f *feed) Track(name, namespace string, kube kubernetes.Interface, opts tracker.Options) error {
	ctx, cancel := opts.Context()
	defer cancel()

	job := NewTracker(name, namespace, kube, Handlers{
		Added: func(status JobStatus) error {
			f.setStatus(status)
			if f.OnAddedFunc != nil {
				return f.OnAddedFunc()
			}
			return nil
		},
		Succeeded: func(status JobStatus) error {
			f.setStatus(status)
			if f.OnSucceededFunc != nil {
				return f.OnSucceededFunc()
			}
			return nil
		},
		Failed: func(status JobStatus) error {
			f.setStatus(status)
			if f.OnFailedFunc != nil {
				return f.OnFailedFunc(status.FailedReason)
			}
			return nil
		},
		Status: func(status JobStatus) error {
			f.setStatus(status)
			if f.OnStatusFunc != nil {
				return f.OnStatusFunc(status)
			}
			return nil
		},
	})

	return job.Track(ctx)
}

func (f *feed) setStatus(status JobStatus) {
	f.statusMux.Lock()
	defer f.statusMux.Unlock()

	if status.StatusGeneration > f.status.StatusGeneration {
		f.status = status
	}
}

func (f *feed) GetStatus() JobStatus {
	f.statusMux.Lock()
	defer f.statusMux.Unlock()
	return f.status
}
