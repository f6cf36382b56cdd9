package native

import (
	"errors"
	"regexp"

	"github.com/tetratelabs/wazero/sys"
)

// ErrAbort reports that the engine terminated itself, typically through
// exit() after a fatal error. The instance is unusable until Reset.
var ErrAbort = errors.New("engine aborted")

var exitPattern = regexp.MustCompile(`^exit\(\d+\)`)

// IsAbort reports whether err is a fatal engine exit.
func IsAbort(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAbort) {
		return true
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			return false
		}
		return true
	}
	return exitPattern.MatchString(err.Error())
}
