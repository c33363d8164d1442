// Package dispatcher wraps a per-delivery work function with the outcome
// classification from spec.md §4.5: parse JSON, run work, then route the
// result to an ack, a reject-and-requeue, or a dual publish (user-error +
// system-error) depending on how work failed.
//
// Grounded on original_source/lega/utils/amqp.py's _handle_request and
// the process_request closure inside consume(), restructured as a Go
// type wrapping a Work function instead of a decorator stack.
package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/neicnordic/ingest-worker/internal/ingesterr"
)

// Work is the per-message pipeline (internal/ingest.Worker.Process, in
// production) that dispatcher invokes once a Delivery's body has been
// parsed into content.
type Work func(ctx Context, content map[string]any) (map[string]any, error)

// Context is the minimal per-delivery context Work needs: just the
// correlation id, threaded explicitly rather than through a process-wide
// ambient slot (spec.md §9's redesign note for once-concurrent workers).
type Context struct {
	CorrelationID string
}

// Publisher is the subset of *broker.Broker the dispatcher needs.
type Publisher interface {
	Publish(content any, exchange, routingKey, correlationID string) error
}

// Routing carries the DEFAULT-section routing configuration (spec.md §6).
type Routing struct {
	Exchange        string // default "ingestion.v1"
	RoutingKey      string // success key, conventionally "archived"
	ErrorKey        string // system-error key, default "error.system"
	UserErrorKey    string // user-error key, default "error"
}

// Dispatcher classifies the outcome of Work and drives the publish/ack
// side effects described in spec.md §4.5.
type Dispatcher struct {
	pub     Publisher
	routing Routing
	work    Work
}

// New builds a Dispatcher wrapping work with pub/routing.
func New(pub Publisher, routing Routing, work Work) *Dispatcher {
	return &Dispatcher{pub: pub, routing: routing, work: work}
}

// Settlement tells the broker consume loop how to finish a delivery.
type Settlement int

const (
	Ack Settlement = iota
	RejectRequeue
	RejectDiscard
)

// Handle implements spec.md §4.5 steps 2-5 for one delivery. body/
// contentType come straight off the AMQP delivery; correlationID is used
// for every publish this call makes.
func (d *Dispatcher) Handle(contentType string, body []byte, correlationID string) Settlement {
	var content map[string]any

	if contentType == "application/json" {
		if err := json.Unmarshal(body, &content); err != nil {
			logrus.WithError(err).Error("malformed JSON message")
			errPayload := map[string]any{
				"informal": "Malformed JSON-message",
				"formal":   fmt.Sprintf("%v", err),
				"message":  string(body),
			}
			d.publishSystemError(errPayload, correlationID)
			return RejectDiscard
		}
	}

	if len(content) == 0 {
		return Ack
	}

	ctx := Context{CorrelationID: correlationID}
	result, err := d.work(ctx, content)
	if err == nil {
		if pubErr := d.pub.Publish(result, d.routing.Exchange, d.routing.RoutingKey, correlationID); pubErr != nil {
			logrus.WithError(pubErr).Error("publishing success message failed")
		}
		return Ack
	}

	var reject *ingesterr.RejectMessage
	if errors.As(err, &reject) {
		logrus.Warnf("message rejected: %s", reject.Reason)
		return RejectRequeue
	}

	var fromUser *ingesterr.FromUser
	if errors.As(err, &fromUser) {
		cause := fromUser.Cause
		logrus.WithError(cause).Error("user error")
		content["reason"] = cause.Error()
		cleanMessage(content)
		if pubErr := d.pub.Publish(content, d.routing.Exchange, d.routing.UserErrorKey, correlationID); pubErr != nil {
			logrus.WithError(pubErr).Error("publishing user-error message failed")
		}
		// Dual routing: the outer handler also publishes to the
		// system-error key, matching the original's "ack then re-raise".
		d.publishSystemError(map[string]any{
			"informal": cause.Error(),
			"formal":   fmt.Sprintf("%s: %s", fromUser.ClassName, cause.Error()),
		}, correlationID)
		return Ack
	}

	logrus.WithError(err).Error("system error")
	content["error"] = map[string]any{
		"informal": err.Error(),
		"formal":   fmt.Sprintf("%T: %s", err, err.Error()),
	}
	d.publishSystemError(content, correlationID)
	return RejectDiscard
}

func (d *Dispatcher) publishSystemError(payload map[string]any, correlationID string) {
	if err := d.pub.Publish(payload, d.routing.Exchange, d.routing.ErrorKey, correlationID); err != nil {
		logrus.WithError(err).Error("publishing system-error message failed")
	}
}

// cleanMessage scrubs internal-only fields before a message crosses to an
// external exchange, matching the glossary's clean_message.
func cleanMessage(content map[string]any) {
	delete(content, "file_id")
	delete(content, "org_msg")
	delete(content, "header")
	delete(content, "vault_path")
}
