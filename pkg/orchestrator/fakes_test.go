package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"

	"github.com/werf/scanjob/pkg/cluster"
	"github.com/werf/scanjob/pkg/storage"
	"github.com/werf/scanjob/pkg/tracker/job"
)

type fakeCluster struct {
	pingErr   error
	applyErr  error
	waitErr   error
	logs      string
	logsErr   error
	deleteErr error
	exists    bool
	existsErr error
	events    []string
	eventsErr error
	// onWait runs inside Wait, e.g. to cancel the caller's context.
	onWait func()

	calls        []string
	deleteCtxErr []error
	logRequests  []cluster.LogOptions
	deletes      int
}

func (f *fakeCluster) record(format string, a ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, a...))
}

func (f *fakeCluster) Ping(_ context.Context) error {
	f.record("ping")
	return f.pingErr
}

func (f *fakeCluster) Apply(_ context.Context, object *batchv1.Job) error {
	f.record("apply %s/%s", object.Namespace, object.Name)
	return f.applyErr
}

func (f *fakeCluster) Wait(_ context.Context, ref cluster.Ref, timeout time.Duration) (job.JobStatus, error) {
	f.record("wait %s %s", ref.Name, timeout)
	if f.onWait != nil {
		f.onWait()
	}
	if f.waitErr != nil {
		return job.JobStatus{}, f.waitErr
	}
	return job.JobStatus{IsSucceeded: true}, nil
}

func (f *fakeCluster) Logs(_ context.Context, ref cluster.Ref, opts cluster.LogOptions) (io.ReadCloser, error) {
	f.record("logs %s", ref.Name)
	f.logRequests = append(f.logRequests, opts)
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return io.NopCloser(strings.NewReader(f.logs)), nil
}

func (f *fakeCluster) Delete(ctx context.Context, ref cluster.Ref, opts cluster.DeleteOptions) error {
	f.record("delete %s ignoreNotFound=%v", ref.Name, opts.IgnoreNotFound)
	f.deletes++
	f.deleteCtxErr = append(f.deleteCtxErr, ctx.Err())
	return f.deleteErr
}

func (f *fakeCluster) Exists(_ context.Context, ref cluster.Ref) (bool, error) {
	f.record("exists %s", ref.Name)
	return f.exists, f.existsErr
}

func (f *fakeCluster) Events(_ context.Context, ref cluster.Ref) ([]string, error) {
	f.record("events %s", ref.Name)
	return f.events, f.eventsErr
}

type upload struct {
	Bucket string
	Key    string
	Size   int64
	Body   string
}

type fakeStorage struct {
	identityErr  error
	bucketAbsent bool
	bucketErr    error
	putErr       error

	calls   []string
	uploads []upload
}

func (f *fakeStorage) CheckIdentity(_ context.Context) (storage.Identity, error) {
	f.calls = append(f.calls, "identity")
	if f.identityErr != nil {
		return storage.Identity{}, f.identityErr
	}
	return storage.Identity{Account: "123456789012", ARN: "arn:aws:iam::123456789012:user/scanner"}, nil
}

func (f *fakeStorage) BucketExists(_ context.Context, bucket string) (bool, error) {
	f.calls = append(f.calls, "bucket "+bucket)
	return !f.bucketAbsent, f.bucketErr
}

func (f *fakeStorage) Put(_ context.Context, bucket, key string, body io.Reader, size int64) error {
	f.calls = append(f.calls, "put "+key)

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, upload{Bucket: bucket, Key: key, Size: size, Body: string(data)})

	return f.putErr
}
