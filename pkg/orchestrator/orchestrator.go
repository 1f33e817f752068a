// Package orchestrator drives one scan job through its lifecycle: prerequisite
// check, submit, await completion, fetch and upload the report (or capture
// diagnostics on failure) and cleanup.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	batchv1 "k8s.io/api/batch/v1"

	"github.com/werf/logboek"

	"github.com/werf/scanjob/pkg/cluster"
	"github.com/werf/scanjob/pkg/config"
	"github.com/werf/scanjob/pkg/manifest"
	"github.com/werf/scanjob/pkg/report"
	"github.com/werf/scanjob/pkg/storage"
	"github.com/werf/scanjob/pkg/tracker"
)

const cleanupTimeout = time.Minute

type Orchestrator struct {
	Config  config.Config
	Cluster cluster.Client
	Storage storage.Client

	LoadManifest func(path string) (*batchv1.Job, error)
	Now          func() time.Time
	// TempDir holds log buffers, os.TempDir() when empty.
	TempDir string
}

func New(cfg config.Config, clusterClient cluster.Client, storageClient storage.Client) *Orchestrator {
	return &Orchestrator{
		Config:       cfg,
		Cluster:      clusterClient,
		Storage:      storageClient,
		LoadManifest: manifest.Load,
		Now:          time.Now,
	}
}

// Run executes the lifecycle once. It never exits the process; the caller
// maps Result.ExitCode.
func (o *Orchestrator) Run(ctx context.Context) (res Result) {
	ctx = withLogger(ctx)

	start := o.Now()
	defer func() {
		res.ExitCode = res.Outcome.ExitCode()
		res.Duration = o.Now().Sub(start)
	}()

	job, err := o.checkPrerequisites(ctx)
	if err != nil {
		return Result{Outcome: PrerequisiteFailed, Err: err}
	}
	ref := cluster.Ref{Name: job.Name, Namespace: job.Namespace}

	err = logboek.Context(ctx).Default().LogProcess("Submitting %s", ref).DoError(func() error {
		return o.Cluster.Apply(ctx, job)
	})
	if err != nil {
		return Result{Outcome: SubmitFailed, Err: err}
	}
	res.JobSubmitted = true

	defer func() {
		res.JobDeleted = o.cleanup(ctx, ref)
	}()

	err = logboek.Context(ctx).Default().LogProcess("Waiting for %s to complete (timeout %s)", ref, o.Config.Timeout).DoError(func() error {
		_, err := o.Cluster.Wait(ctx, ref, o.Config.Timeout)
		return err
	})
	if err != nil {
		if errors.Is(err, tracker.ErrTrackTimeout) {
			err = fmt.Errorf("%s did not complete within %s: %w", ref, o.Config.Timeout, err)
		}
		o.captureFailure(ctx, ref, &res)
		res.Outcome = JobFailed
		res.Err = err
		return res
	}

	o.fetchAndUpload(ctx, ref, &res)
	return res
}

func (o *Orchestrator) checkPrerequisites(ctx context.Context) (*batchv1.Job, error) {
	var job *batchv1.Job

	err := logboek.Context(ctx).Default().LogProcess("Checking prerequisites").DoError(func() error {
		var err error
		if job, err = o.LoadManifest(o.Config.Manifest); err != nil {
			return err
		}
		if err := manifest.CheckIdentity(job, o.Config.JobName, o.Config.Namespace); err != nil {
			return err
		}

		if err := o.Cluster.Ping(ctx); err != nil {
			return err
		}

		identity, err := o.Storage.CheckIdentity(ctx)
		if err != nil {
			return err
		}
		logboek.Context(ctx).Info().LogF("Storage identity: %s\n", identity.ARN)

		exists, err := o.Storage.BucketExists(ctx, o.Config.Bucket)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("bucket s3://%s does not exist", o.Config.Bucket)
		}

		return nil
	})

	return job, err
}

// fetchAndUpload ships the full log of a completed job.
func (o *Orchestrator) fetchAndUpload(ctx context.Context, ref cluster.Ref, res *Result) {
	buffer, err := o.capture(ctx, ref, cluster.LogOptions{})
	if err != nil {
		res.Outcome = LogFetchFailed
		res.Err = fmt.Errorf("fetch logs of %s: %w", ref, err)
		return
	}
	defer o.removeBuffer(ctx, buffer)

	if buffer.Empty() {
		logboek.Context(ctx).Info().LogF("Log of %s is empty, nothing to upload\n", ref)
		res.Outcome = SucceededEmptyReport
		return
	}

	key := report.Key(o.Config.BaseFolder, o.Config.JobName, o.Now(), false)
	if err := o.upload(ctx, buffer, key); err != nil {
		res.Outcome = UploadFailed
		res.Err = err
		return
	}

	res.Outcome = Succeeded
	res.ReportKey = key
	res.ReportBytes = buffer.Size()
}

// captureFailure collects what it can about a failed or timed out job. Every
// step is best effort and only warns.
func (o *Orchestrator) captureFailure(ctx context.Context, ref cluster.Ref, res *Result) {
	if events, err := o.Cluster.Events(ctx, ref); err != nil {
		logboek.Context(ctx).Warn().LogF("WARNING: unable to list events of %s: %s\n", ref, err)
	} else if len(events) > 0 {
		logboek.Context(ctx).Default().LogFDetails("Events of %s:\n", ref)
		for _, line := range events {
			logboek.Context(ctx).Default().LogFDetails("  %s\n", line)
		}
	}

	var opts cluster.LogOptions
	if o.Config.FailureTailLines > 0 {
		opts.TailLines = lo.ToPtr(o.Config.FailureTailLines)
	}

	buffer, err := o.capture(ctx, ref, opts)
	if err != nil {
		logboek.Context(ctx).Warn().LogF("WARNING: unable to retrieve logs of %s: %s\n", ref, err)
		return
	}
	defer o.removeBuffer(ctx, buffer)

	if buffer.Empty() {
		logboek.Context(ctx).Info().LogF("Log of %s is empty, nothing to upload\n", ref)
		return
	}

	key := report.Key(o.Config.BaseFolder, o.Config.JobName, o.Now(), true)
	if err := o.upload(ctx, buffer, key); err != nil {
		logboek.Context(ctx).Warn().LogF("WARNING: %s\n", err)
		return
	}

	res.ReportKey = key
	res.ReportBytes = buffer.Size()
}

func (o *Orchestrator) capture(ctx context.Context, ref cluster.Ref, opts cluster.LogOptions) (*report.Buffer, error) {
	stream, err := o.Cluster.Logs(ctx, ref, opts)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	buffer, err := report.NewBuffer(o.TempDir, o.Config.StripANSI)
	if err != nil {
		return nil, err
	}

	if err := buffer.Fill(stream); err != nil {
		o.removeBuffer(ctx, buffer)
		return nil, err
	}

	logboek.Context(ctx).Debug().LogF("Captured %d bytes of %s log into %s\n", buffer.Size(), ref, buffer.Path())
	return buffer, nil
}

func (o *Orchestrator) upload(ctx context.Context, buffer *report.Buffer, key string) error {
	uri := report.URI(o.Config.Bucket, key)

	return logboek.Context(ctx).Default().LogProcess("Uploading report to %s", uri).DoError(func() error {
		body, err := buffer.Open()
		if err != nil {
			return err
		}
		defer body.Close()

		if err := o.Storage.Put(ctx, o.Config.Bucket, key, body, buffer.Size()); err != nil {
			return fmt.Errorf("upload report to %s: %w", uri, err)
		}
		return nil
	})
}

func (o *Orchestrator) removeBuffer(ctx context.Context, buffer *report.Buffer) {
	if err := buffer.Remove(); err != nil {
		logboek.Context(ctx).Warn().LogF("WARNING: %s\n", err)
	}
}

// cleanup deletes the job and reports whether it is known to be gone. It
// never fails the run. The existence check after a failed delete races with
// other actors and only chooses the wording of the warning.
func (o *Orchestrator) cleanup(ctx context.Context, ref cluster.Ref) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	var deleted bool
	_ = logboek.Context(ctx).Default().LogProcess("Deleting %s", ref).DoError(func() error {
		deleteErr := o.Cluster.Delete(ctx, ref, cluster.DeleteOptions{IgnoreNotFound: true})
		if deleteErr == nil {
			deleted = true
			return nil
		}

		exists, err := o.Cluster.Exists(ctx, ref)
		switch {
		case err != nil:
			logboek.Context(ctx).Warn().LogF("WARNING: unable to delete %s: %s\n", ref, deleteErr)
			logboek.Context(ctx).Warn().LogF("WARNING: unable to check whether it still exists: %s\n", err)
			logboek.Context(ctx).Warn().LogF("WARNING: delete it manually if it is still present\n")
		case exists:
			logboek.Context(ctx).Warn().LogF("WARNING: unable to delete %s: %s\n", ref, deleteErr)
			logboek.Context(ctx).Warn().LogF("WARNING: it is still present, delete it manually\n")
		default:
			logboek.Context(ctx).Info().LogF("%s is already gone\n", ref)
			deleted = true
		}

		return nil
	})

	return deleted
}

// withLogger makes sure contexts derived from ctx carry a logboek logger.
// logboek only falls back to the default logger for context.Background itself.
func withLogger(ctx context.Context) (bound context.Context) {
	defer func() {
		if recover() != nil {
			bound = logboek.NewContext(ctx, logboek.DefaultLogger())
		}
	}()

	if ctx == context.Background() {
		return logboek.NewContext(ctx, logboek.DefaultLogger())
	}

	logboek.Context(ctx)
	return ctx
}
