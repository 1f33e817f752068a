package job

import (
	"context"
	"errors"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
	watchtools "k8s.io/client-go/tools/watch"

	"github.com/werf/logboek"

	"github.com/werf/scanjob/pkg/tracker"
	"github.com/werf/scanjob/pkg/tracker/debug"
)

type Handlers struct {
	Added     func(JobStatus) error
	Succeeded func(JobStatus) error
	Failed    func(JobStatus) error
	Status    func(JobStatus) error
}

type Tracker struct {
	tracker.Tracker

	State tracker.TrackerState

	lastObject *batchv1.Job
	handlers   Handlers
}

func NewTracker(name, namespace string, kube kubernetes.Interface, handlers Handlers) *Tracker {
	return &Tracker{
		Tracker: tracker.Tracker{
			Kube:             kube,
			Namespace:        namespace,
			FullResourceName: fmt.Sprintf("job/%s", name),
			ResourceName:     name,
		},
		State:    tracker.Initial,
		handlers: handlers,
	}
}

// Track lists and watches the single job until a terminal condition is
// observed or ctx is done.
func (job *Tracker) Track(ctx context.Context) error {
	fieldSelector := fields.OneTermEqualSelector("metadata.name", job.ResourceName).String()
	jobs := job.Kube.BatchV1().Jobs(job.Namespace)

	lw := &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			options.FieldSelector = fieldSelector
			return jobs.List(ctx, options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			options.FieldSelector = fieldSelector
			return jobs.Watch(ctx, options)
		},
	}

	_, err := watchtools.UntilWithSync(ctx, lw, &batchv1.Job{}, nil, job.handleEvent)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return fmt.Errorf("%s: %w", job.FullResourceName, tracker.ErrTrackTimeout)
			}
			return fmt.Errorf("%s: %w", job.FullResourceName, ctxErr)
		}
		return err
	}

	return nil
}

func (job *Tracker) handleEvent(event watch.Event) (bool, error) {
	if event.Type == watch.Error {
		return false, fmt.Errorf("watch %s: %v", job.FullResourceName, event.Object)
	}

	object, ok := event.Object.(*batchv1.Job)
	if !ok || object.Name != job.ResourceName || object.Namespace != job.Namespace {
		return false, nil
	}

	if event.Type == watch.Deleted {
		if debug.Debug() {
			logboek.Context(context.Background()).Debug().LogF("%s deleted while tracking\n", job.FullResourceName)
		}
		job.State = tracker.ResourceDeleted
		job.lastObject = nil
		if done, err := job.dispatch(job.handlers.Status, JobStatus{}, false); done {
			return done, err
		}
		// A deleted job never reaches a terminal condition.
		return true, fmt.Errorf("%s: %w", job.FullResourceName, tracker.ErrResourceDeleted)
	}

	return job.handleJobState(object)
}

func (job *Tracker) handleJobState(object *batchv1.Job) (bool, error) {
	job.lastObject = object
	job.StatusGeneration++

	status := NewJobStatus(object, job.StatusGeneration)

	if debug.Debug() {
		logboek.Context(context.Background()).Debug().LogF("%s state=%s succeeded=%s failed=%s waiting=%v\n", job.FullResourceName, job.State, debug.YesNo(status.IsSucceeded), debug.YesNo(status.IsFailed), status.WaitingForMessages)
	}

	switch {
	case status.IsSucceeded:
		job.State = tracker.ResourceSucceeded
		return job.dispatch(job.handlers.Succeeded, status, true)
	case status.IsFailed:
		job.State = tracker.ResourceFailed
		return job.dispatch(job.handlers.Failed, status, true)
	case job.State == tracker.Initial || job.State == tracker.ResourceDeleted:
		job.State = tracker.ResourceAdded
		return job.dispatch(job.handlers.Added, status, false)
	default:
		return job.dispatch(job.handlers.Status, status, false)
	}
}

func (job *Tracker) dispatch(handler func(JobStatus) error, status JobStatus, terminal bool) (bool, error) {
	if handler != nil {
		err := handler(status)
		if err == tracker.StopTrack {
			return true, nil
		}
		if err != nil {
			return true, err
		}
	}

	return terminal, nil
}
