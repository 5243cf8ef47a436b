package publish

import (
	"errors"
	"fmt"

	"github.com/jmehdipour/wx-ci/internal/model"
)

// NotificationError wraps any failure of the webhook leg: image upload,
// transport, or a rejected message. It never fails the run.
type NotificationError struct {
	Type model.RunType
	Err  error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s notification failed: %v", e.Type, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func IsNotificationError(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne)
}
