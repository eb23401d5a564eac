package avio

import (
	"fmt"

	"github.com/pkg/errors"
)

// errf builds a plain formatted error. Callers above this package decide
// which of the six typed kinds (internal/errs) an avio error becomes.
func errf(format string, args ...interface{}) error {
	return errors.New(fmt.Sprintf(format, args...))
}

func wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}
