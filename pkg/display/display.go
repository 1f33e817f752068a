package display

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/werf/scanjob/pkg/utils"
)

var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr

	mutex = &sync.Mutex{}
)

func fWriteF(stream io.Writer, format string, args ...interface{}) (n int, err error) {
	mutex.Lock()
	defer mutex.Unlock()
	return fmt.Fprintf(stream, format, args...)
}

func OutF(format string, args ...interface{}) (n int, err error) {
	return fWriteF(Out, format, args...)
}

func ErrF(format string, args ...interface{}) (n int, err error) {
	return fWriteF(Err, format, args...)
}

// StatusLine prints the single final line of a run: to Out on success and to
// Err otherwise.
func StatusLine(ok bool, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if ok {
		_, _ = OutF("%s %s\n", utils.GreenString("SUCCESS"), msg)
		return
	}
	_, _ = ErrF("%s %s\n", utils.RedString("FAILED"), msg)
}
