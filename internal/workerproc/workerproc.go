// Package workerproc turns export nudges from the queue into worker drains.
// The SQS Lambda and the long-running worker both go through it.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"assessment-backend/internal/exports"
	"assessment-backend/internal/queue"
)

// Fingerprint identifies a message body in logs without printing it.
type Fingerprint struct {
	Len    int
	SHA256 string
}

func FingerprintOf(body string) Fingerprint {
	if body == "" {
		return Fingerprint{}
	}
	sum := sha256.Sum256([]byte(body))
	return Fingerprint{Len: len(body), SHA256: hex.EncodeToString(sum[:])}
}

// Reasons a nudge is rejected outright.
var (
	ErrEmptyBody     = errors.New("empty message body")
	ErrUndecodable   = errors.New("undecodable message")
	ErrMissingTarget = errors.New("message names no exports")
)

// InvalidNudgeError is returned for messages no amount of redelivery can fix.
type InvalidNudgeError struct {
	Reason    error
	Body      Fingerprint
	RequestID string
	Err       error
}

func (e *InvalidNudgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Reason, e.Err)
	}
	return e.Reason.Error()
}

func (e *InvalidNudgeError) Is(target error) bool { return target == e.Reason }

func (e *InvalidNudgeError) Unwrap() error { return e.Err }

// Drainer is the export worker as seen from a queue consumer.
type Drainer interface {
	Drain(ctx context.Context) exports.DrainResult
}

// ParseMessage decodes a nudge. It must carry at least one export id or a
// document id.
func ParseMessage(body string) (queue.Message, Fingerprint, error) {
	fp := FingerprintOf(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, fp, &InvalidNudgeError{Reason: ErrEmptyBody, Body: fp}
	}
	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, fp, &InvalidNudgeError{Reason: ErrUndecodable, Body: fp, Err: err}
	}
	if len(msg.ExportIDs) == 0 && strings.TrimSpace(msg.DocumentID) == "" {
		return msg, fp, &InvalidNudgeError{Reason: ErrMissingTarget, Body: fp, RequestID: msg.RequestID}
	}
	return msg, fp, nil
}

// Unrecoverable reports whether the message should be dropped rather than
// left for redelivery.
func Unrecoverable(err error) bool {
	var invalid *InvalidNudgeError
	return errors.As(err, &invalid)
}

// HandleMessage drains the export queue for a valid nudge. The nudge only
// wakes the worker; the drain processes everything that is due, so a drain
// skipped because another is in flight still counts as handled.
func HandleMessage(ctx context.Context, d Drainer, body string) (queue.Message, exports.DrainResult, error) {
	if d == nil {
		return queue.Message{}, exports.DrainResult{}, errors.New("export worker not configured")
	}
	msg, _, err := ParseMessage(body)
	if err != nil {
		return msg, exports.DrainResult{}, err
	}
	return msg, d.Drain(ctx), nil
}
