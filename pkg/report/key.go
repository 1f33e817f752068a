package report

import (
	"fmt"
	"path"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "150405"

	failedPrefix = "FAILED_"
)

// Key is the object key a report of jobName captured at t is stored under.
// Dates and clock times are always rendered in UTC:
//
//	<base>/<YYYY-MM-DD>/<HHMMSS>/[FAILED_]<job>_report_<YYYY-MM-DD>_<HHMMSS>.log
func Key(baseFolder, jobName string, t time.Time, failed bool) string {
	t = t.UTC()
	date := t.Format(dateLayout)
	clock := t.Format(timeLayout)

	name := fmt.Sprintf("%s_report_%s_%s.log", jobName, date, clock)
	if failed {
		name = failedPrefix + name
	}

	return path.Join(baseFolder, date, clock, name)
}

func URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
