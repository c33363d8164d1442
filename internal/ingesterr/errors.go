// Package ingesterr defines the small typed-error taxonomy the dispatcher
// uses to classify a delivery's outcome: retry-in-place, blame the user, or
// treat as an unclassified system fault.
package ingesterr

import "fmt"

// RejectMessage signals "not for me, requeue without side effects". The
// dispatcher rejects the delivery with requeue=true and performs no DB
// write.
type RejectMessage struct {
	Reason string
}

func (e *RejectMessage) Error() string {
	return fmt.Sprintf("reject message: %s", e.Reason)
}

// FromUser wraps an error attributable to the submitter (bad input, a file
// missing from the inbox, a header the parser refuses). ClassName names the
// concrete originating class (e.g. "NotFoundInInbox", "HeaderRejected") and
// is what the dispatcher and the DB gateway use when tagging a message or a
// set_error row, matching the original's error.__class__.__name__. The
// dispatcher publishes the message with the cause's text as its "reason"
// field to the user-error key, also publishes to the system-error key, and
// acks the delivery.
type FromUser struct {
	ClassName string
	Cause     error
}

func (e *FromUser) Error() string {
	return e.Cause.Error()
}

func (e *FromUser) Unwrap() error {
	return e.Cause
}

// NotFoundInInbox reports that the inbox file named by a delivery's
// filepath does not exist on disk.
func NotFoundInInbox(filepath string) *FromUser {
	return &FromUser{
		ClassName: "NotFoundInInbox",
		Cause:     fmt.Errorf("file not found in inbox: %s", filepath),
	}
}

// HeaderRejected reports that the Crypt4GH header parser refused the file
// (bad magic, truncated header, unsupported version).
func HeaderRejected(cause error) *FromUser {
	return &FromUser{
		ClassName: "HeaderRejected",
		Cause:     fmt.Errorf("header rejected: %w", cause),
	}
}
