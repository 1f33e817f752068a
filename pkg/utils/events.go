package utils

import (
	"context"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/kubernetes"
)

// SortableEvents implements sort.Interface for []api.Event based on the Timestamp field
type SortableEvents []corev1.Event

func (list SortableEvents) Len() int {
	return len(list)
}

func (list SortableEvents) Swap(i, j int) {
	list[i], list[j] = list[j], list[i]
}

func (list SortableEvents) Less(i, j int) bool {
	return eventTime(list[i]).Time.Before(eventTime(list[j]).Time)
}

func eventTime(e corev1.Event) metav1.Time {
	switch {
	case !e.LastTimestamp.IsZero():
		return e.LastTimestamp
	case !e.EventTime.IsZero():
		return metav1.NewTime(e.EventTime.Time)
	default:
		return e.FirstTimestamp
	}
}

// FormatEventSource formats EventSource as a comma separated string excluding Host when empty
func FormatEventSource(es corev1.EventSource) string {
	EventSourceString := []string{es.Component}
	if len(es.Host) > 0 {
		EventSourceString = append(EventSourceString, es.Host)
	}
	return strings.Join(EventSourceString, ", ")
}

var eventsTableRatio = []float64{.08, .18, .16, .16, .42}

// DescribeEvents renders events oldest first as a table, header included.
func DescribeEvents(events []corev1.Event) []string {
	if len(events) == 0 {
		return nil
	}

	sorted := append(SortableEvents{}, events...)
	sort.Stable(sorted)

	t := NewTable(eventsTableRatio...)
	t.Header("TYPE", "REASON", "AGE", "FROM", "MESSAGE")
	for _, e := range sorted {
		var interval string
		if e.Count > 1 {
			interval = fmt.Sprintf("%s (x%d over %s)", TranslateTimestampSince(e.LastTimestamp), e.Count, TranslateTimestampSince(e.FirstTimestamp))
		} else {
			interval = TranslateTimestampSince(eventTime(e))
		}

		t.Row(e.Type, e.Reason, interval, FormatEventSource(e.Source), strings.TrimSpace(e.Message))
	}

	return t.Lines()
}

func EventFieldSelectorFromResource(kind string, obj metav1.Object) string {
	field := fields.Set{}
	field["involvedObject.kind"] = kind
	field["involvedObject.name"] = obj.GetName()
	field["involvedObject.namespace"] = obj.GetNamespace()
	if obj.GetUID() != "" {
		field["involvedObject.uid"] = string(obj.GetUID())
	}
	return field.AsSelector().String()
}

// ListEventsForObject returns events involving obj. Items are filtered
// client-side as well, since not every apiserver honors every field selector.
func ListEventsForObject(ctx context.Context, client kubernetes.Interface, kind string, obj metav1.Object) ([]corev1.Event, error) {
	options := metav1.ListOptions{
		FieldSelector: EventFieldSelectorFromResource(kind, obj),
	}
	evList, err := client.CoreV1().Events(obj.GetNamespace()).List(ctx, options)
	if err != nil {
		return nil, err
	}

	var res []corev1.Event
	for _, e := range evList.Items {
		if e.InvolvedObject.Kind != kind || e.InvolvedObject.Name != obj.GetName() {
			continue
		}
		if obj.GetUID() != "" && e.InvolvedObject.UID != "" && e.InvolvedObject.UID != obj.GetUID() {
			continue
		}
		res = append(res, e)
	}

	return res, nil
}
