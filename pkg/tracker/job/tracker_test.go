package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/werf/scanjob/pkg/tracker"
)

func newJob(name string, conditions ...batchv1.JobCondition) *batchv1.Job {
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "scans"},
		Status:     batchv1.JobStatus{Conditions: conditions},
	}
}

func condition(t batchv1.JobConditionType, reason string) batchv1.JobCondition {
	return batchv1.JobCondition{Type: t, Status: corev1.ConditionTrue, Reason: reason}
}

func TestNewJobStatus(t *testing.T) {
	tests := []struct {
		name          string
		job           *batchv1.Job
		wantSucceeded bool
		wantFailed    bool
		wantReason    string
		wantWaiting   bool
	}{
		{name: "pending", job: newJob("a"), wantWaiting: true},
		{name: "complete", job: newJob("a", condition(batchv1.JobComplete, "")), wantSucceeded: true},
		{name: "failed", job: newJob("a", condition(batchv1.JobFailed, "BackoffLimitExceeded")), wantFailed: true, wantReason: "BackoffLimitExceeded"},
		{
			name: "false condition ignored",
			job: newJob("a", batchv1.JobCondition{
				Type:   batchv1.JobFailed,
				Status: corev1.ConditionFalse,
			}),
			wantWaiting: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := NewJobStatus(tt.job, 1)
			if status.IsSucceeded != tt.wantSucceeded {
				t.Errorf("IsSucceeded: expected %v, got %v", tt.wantSucceeded, status.IsSucceeded)
			}
			if status.IsFailed != tt.wantFailed {
				t.Errorf("IsFailed: expected %v, got %v", tt.wantFailed, status.IsFailed)
			}
			if status.FailedReason != tt.wantReason {
				t.Errorf("FailedReason: expected %q, got %q", tt.wantReason, status.FailedReason)
			}
			if (len(status.WaitingForMessages) > 0) != tt.wantWaiting {
				t.Errorf("unexpected waiting messages %v", status.WaitingForMessages)
			}
		})
	}
}

func TestFeedTrackSucceeded(t *testing.T) {
	kube := fake.NewSimpleClientset(newJob("kube-bench", condition(batchv1.JobComplete, "")))

	var succeeded bool
	feed := NewFeed()
	feed.OnSucceeded(func() error {
		succeeded = true
		return nil
	})
	feed.OnFailed(func(reason string) error {
		t.Errorf("unexpected failure: %s", reason)
		return nil
	})

	if err := feed.Track("kube-bench", "scans", kube, tracker.Options{Timeout: 10 * time.Second}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !succeeded {
		t.Error("expected OnSucceeded to be called")
	}
	if !feed.GetStatus().IsSucceeded {
		t.Error("expected feed status to be succeeded")
	}
}

func TestFeedTrackFailed(t *testing.T) {
	kube := fake.NewSimpleClientset(newJob("kube-bench", condition(batchv1.JobFailed, "DeadlineExceeded")))

	var gotReason string
	feed := NewFeed()
	feed.OnFailed(func(reason string) error {
		gotReason = reason
		return nil
	})

	if err := feed.Track("kube-bench", "scans", kube, tracker.Options{Timeout: 10 * time.Second}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if gotReason != "DeadlineExceeded" {
		t.Errorf("expected reason DeadlineExceeded, got %q", gotReason)
	}
	if !feed.GetStatus().IsFailed {
		t.Error("expected feed status to be failed")
	}
}

func TestFeedTrackTimeout(t *testing.T) {
	kube := fake.NewSimpleClientset(newJob("kube-bench"))

	var added bool
	feed := NewFeed()
	feed.OnAdded(func() error {
		added = true
		return nil
	})

	err := feed.Track("kube-bench", "scans", kube, tracker.Options{Timeout: 300 * time.Millisecond})
	if !errors.Is(err, tracker.ErrTrackTimeout) {
		t.Fatalf("expected ErrTrackTimeout, got %v", err)
	}
	if !added {
		t.Error("expected OnAdded to be called for the pending job")
	}
}

func TestFeedTrackIgnoresOtherJobs(t *testing.T) {
	kube := fake.NewSimpleClientset(
		newJob("other", condition(batchv1.JobComplete, "")),
		newJob("kube-bench"),
	)

	feed := NewFeed()
	feed.OnSucceeded(func() error {
		t.Error("unexpected success from another job")
		return nil
	})

	err := feed.Track("kube-bench", "scans", kube, tracker.Options{Timeout: 300 * time.Millisecond})
	if !errors.Is(err, tracker.ErrTrackTimeout) {
		t.Fatalf("expected ErrTrackTimeout, got %v", err)
	}
}

func TestFeedTrackStopTrack(t *testing.T) {
	kube := fake.NewSimpleClientset(newJob("kube-bench"))

	feed := NewFeed()
	feed.OnAdded(func() error {
		return tracker.StopTrack
	})

	if err := feed.Track("kube-bench", "scans", kube, tracker.Options{Timeout: 10 * time.Second}); err != nil {
		t.Fatalf("expected StopTrack to end tracking cleanly, got %v", err)
	}
}

func TestFeedTrackJobDeleted(t *testing.T) {
	kube := fake.NewSimpleClientset(newJob("kube-bench"))

	watching := make(chan struct{})
	var once sync.Once
	kube.PrependWatchReactor("jobs", func(action k8stesting.Action) (bool, watch.Interface, error) {
		once.Do(func() { close(watching) })
		return false, nil, nil
	})

	go func() {
		<-watching
		// Let the default reactor register the watcher first.
		time.Sleep(200 * time.Millisecond)
		_ = kube.BatchV1().Jobs("scans").Delete(context.Background(), "kube-bench", metav1.DeleteOptions{})
	}()

	feed := NewFeed()
	err := feed.Track("kube-bench", "scans", kube, tracker.Options{Timeout: 10 * time.Second})
	if !errors.Is(err, tracker.ErrResourceDeleted) {
		t.Fatalf("expected ErrResourceDeleted, got %v", err)
	}
}

func TestFeedTrackIgnoresOtherJobDeleted(t *testing.T) {
	kube := fake.NewSimpleClientset(newJob("kube-bench"), newJob("other"))

	watching := make(chan struct{})
	var once sync.Once
	kube.PrependWatchReactor("jobs", func(action k8stesting.Action) (bool, watch.Interface, error) {
		once.Do(func() { close(watching) })
		return false, nil, nil
	})

	go func() {
		<-watching
		time.Sleep(100 * time.Millisecond)
		_ = kube.BatchV1().Jobs("scans").Delete(context.Background(), "other", metav1.DeleteOptions{})
	}()

	feed := NewFeed()
	err := feed.Track("kube-bench", "scans", kube, tracker.Options{Timeout: 500 * time.Millisecond})
	if !errors.Is(err, tracker.ErrTrackTimeout) {
		t.Fatalf("expected ErrTrackTimeout, got %v", err)
	}
}
