package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	batchv1ac "k8s.io/client-go/applyconfigurations/batch/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/werf/logboek"

	"github.com/werf/scanjob/pkg/tracker"
	"github.com/werf/scanjob/pkg/tracker/job"
	"github.com/werf/scanjob/pkg/utils"
)

const (
	fieldManager               = "scanjob"
	jobNameLabel               = "job-name"
	defaultContainerAnnotation = "kubectl.kubernetes.io/default-container"
)

type KubeClient struct {
	Kube kubernetes.Interface
}

func NewKubeClient(kube kubernetes.Interface) *KubeClient {
	return &KubeClient{Kube: kube}
}

func (c *KubeClient) Ping(ctx context.Context) error {
	version, err := c.Kube.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("kubernetes api is not reachable: %w", err)
	}

	logboek.Context(ctx).Debug().LogF("Kubernetes server version %s\n", version.GitVersion)
	return nil
}

// Apply server-side applies the job. Re-applying an unchanged manifest over a
// leftover job is accepted; a changed pod template is rejected by the
// apiserver because it is immutable.
func (c *KubeClient) Apply(ctx context.Context, object *batchv1.Job) error {
	cfg, err := jobApplyConfiguration(object)
	if err != nil {
		return fmt.Errorf("prepare job/%s: %w", object.Name, err)
	}

	if _, err := c.Kube.BatchV1().Jobs(object.Namespace).Apply(ctx, cfg, metav1.ApplyOptions{FieldManager: fieldManager, Force: true}); err != nil {
		return fmt.Errorf("apply job/%s: %w", object.Name, err)
	}

	logboek.Context(ctx).Default().LogF("job/%s applied\n", object.Name)
	return nil
}

func jobApplyConfiguration(object *batchv1.Job) (*batchv1ac.JobApplyConfiguration, error) {
	desired := object.DeepCopy()
	desired.ResourceVersion = ""
	desired.UID = ""
	desired.ManagedFields = nil
	desired.Status = batchv1.JobStatus{}

	data, err := json.Marshal(desired)
	if err != nil {
		return nil, err
	}

	cfg := batchv1ac.Job(object.Name, object.Namespace)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Status = nil

	return cfg, nil
}

func (c *KubeClient) Wait(ctx context.Context, ref Ref, timeout time.Duration) (job.JobStatus, error) {
	feed := job.NewFeed()

	feed.OnAdded(func() error {
		logboek.Context(ctx).Info().LogF("# job/%s added\n", ref.Name)
		return nil
	})
	feed.OnSucceeded(func() error {
		if d := feed.GetStatus().Duration; d != "" {
			logboek.Context(ctx).Default().LogF("# job/%s succeeded in %s\n", ref.Name, d)
		} else {
			logboek.Context(ctx).Default().LogF("# job/%s succeeded\n", ref.Name)
		}
		return tracker.StopTrack
	})
	feed.OnFailed(func(reason string) error {
		logboek.Context(ctx).Warn().LogF("# job/%s FAIL: %s\n", ref.Name, reason)
		return tracker.StopTrack
	})
	feed.OnStatus(func(status job.JobStatus) error {
		if len(status.WaitingForMessages) > 0 {
			logboek.Context(ctx).Info().LogF("# job/%s waiting for: %s\n", ref.Name, status.WaitingForMessages)
		}
		return nil
	})

	err := feed.Track(ref.Name, ref.Namespace, c.Kube, tracker.Options{ParentContext: ctx, Timeout: timeout})
	status := feed.GetStatus()
	if err != nil {
		return status, err
	}

	if status.IsFailed {
		return status, fmt.Errorf("job/%s: %w: %s", ref.Name, ErrJobFailed, status.FailedReason)
	}

	return status, nil
}

func (c *KubeClient) Logs(ctx context.Context, ref Ref, opts LogOptions) (io.ReadCloser, error) {
	pod, err := c.jobPod(ctx, ref)
	if err != nil {
		return nil, err
	}

	logOpts := &corev1.PodLogOptions{
		Container: defaultContainer(pod),
		TailLines: opts.TailLines,
	}

	stream, err := c.Kube.CoreV1().Pods(ref.Namespace).GetLogs(pod.Name, logOpts).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open log stream of po/%s container %s: %w", pod.Name, logOpts.Container, err)
	}

	return stream, nil
}

func (c *KubeClient) Delete(ctx context.Context, ref Ref, opts DeleteOptions) error {
	propagation := metav1.DeletePropagationBackground

	err := c.Kube.BatchV1().Jobs(ref.Namespace).Delete(ctx, ref.Name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		if opts.IgnoreNotFound && apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete job/%s: %w", ref.Name, err)
	}

	return nil
}

func (c *KubeClient) Exists(ctx context.Context, ref Ref) (bool, error) {
	if _, err := c.Kube.BatchV1().Jobs(ref.Namespace).Get(ctx, ref.Name, metav1.GetOptions{}); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get job/%s: %w", ref.Name, err)
	}

	return true, nil
}

func (c *KubeClient) Events(ctx context.Context, ref Ref) ([]string, error) {
	object, err := c.Kube.BatchV1().Jobs(ref.Namespace).Get(ctx, ref.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get job/%s: %w", ref.Name, err)
	}

	events, err := utils.ListEventsForObject(ctx, c.Kube, "Job", object)
	if err != nil {
		return nil, fmt.Errorf("list events of job/%s: %w", ref.Name, err)
	}

	return utils.DescribeEvents(events), nil
}

// jobPod picks the pod whose log represents the job run: a succeeded pod if
// there is one, otherwise the most recently created.
func (c *KubeClient) jobPod(ctx context.Context, ref Ref) (*corev1.Pod, error) {
	selector := labels.SelectorFromSet(labels.Set{jobNameLabel: ref.Name})

	object, err := c.Kube.BatchV1().Jobs(ref.Namespace).Get(ctx, ref.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get job/%s: %w", ref.Name, err)
	}
	if object.Spec.Selector != nil {
		if selector, err = metav1.LabelSelectorAsSelector(object.Spec.Selector); err != nil {
			return nil, fmt.Errorf("parse selector of job/%s: %w", ref.Name, err)
		}
	}

	podList, err := c.Kube.CoreV1().Pods(ref.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("list pods of job/%s: %w", ref.Name, err)
	}
	if len(podList.Items) == 0 {
		return nil, fmt.Errorf("job/%s: %w", ref.Name, ErrNoPods)
	}

	candidates := lo.Filter(podList.Items, func(pod corev1.Pod, _ int) bool {
		return pod.Status.Phase == corev1.PodSucceeded
	})
	if len(candidates) == 0 {
		candidates = podList.Items
	}

	pod := lo.MaxBy(candidates, func(a, b corev1.Pod) bool {
		return b.CreationTimestamp.Before(&a.CreationTimestamp)
	})

	return &pod, nil
}

func defaultContainer(pod *corev1.Pod) string {
	if name, ok := pod.Annotations[defaultContainerAnnotation]; ok {
		if lo.ContainsBy(pod.Spec.Containers, func(c corev1.Container) bool { return c.Name == name }) {
			return name
		}
	}

	if len(pod.Spec.Containers) > 0 {
		return pod.Spec.Containers[0].Name
	}

	return ""
}
