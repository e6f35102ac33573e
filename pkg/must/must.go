package must

import (
	"io"
	"os"

	"github.com/cisaacstern/rattler/pkg/logging"
)

// Close closes c, logging a warning if the close fails. It is intended for
// deferred cleanup paths where a close error shouldn't mask the error already
// being returned by the surrounding function.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// OSRemove removes the file at name, logging a warning if the removal fails.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warnf("unable to remove '%s': %s", name, err.Error())
	}
}

// Succeed logs a warning if err is non-nil, naming the task that failed.
func Succeed(err error, task string, logger *logging.Logger) {
	if err != nil {
		logger.Warnf("unable to succeed at %s: %s", task, err.Error())
	}
}
