package email

import (
	"regexp"
	"strings"

	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// SourceTag marks intake candidates produced by this adapter.
const SourceTag = "email"

const (
	defaultSender  = "unknown"
	defaultSubject = "No Subject"
)

var senderPattern = regexp.MustCompile(`<(.+@.+)>`)

// Header is one raw message header.
type Header struct {
	Name  string
	Value string
}

// RawMessage is the untrusted shape fetched from the origin.
type RawMessage struct {
	ID      string
	Headers []Header
}

// Header returns the first value of the named header, matched
// case-insensitively.
func (m RawMessage) Header(name string) (string, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Normalizer turns raw origin messages into hardened intake candidates.
type Normalizer struct {
	logger loggingpkg.ServiceLogger
}

func NewNormalizer(log loggingpkg.ServiceLogger) *Normalizer {
	return &Normalizer{logger: log.With(loggingpkg.LogFields{"component": "email_normalizer"})}
}

// Normalize hardens msg and its plain text body. It reports false, after
// logging a warning, when the message has no id or the body is empty once
// hardened. The candidate carries no trace identity.
func (n *Normalizer) Normalize(msg RawMessage, plainTextBody string) (events.IntakeCandidate, bool) {
	if msg.ID == "" {
		n.logger.Warn("Dropping message: missing message id", nil)
		return events.IntakeCandidate{}, false
	}

	body, ok := Harden(plainTextBody)
	if !ok {
		n.logger.Warn("Dropping message: empty body after hardening", loggingpkg.LogFields{"external_id": msg.ID})
		return events.IntakeCandidate{}, false
	}

	from, _ := msg.Header("From")
	if from == "" {
		from = defaultSender
	}
	subject, _ := msg.Header("Subject")
	if subject == "" {
		subject = defaultSubject
	}

	return events.IntakeCandidate{
		Source:     SourceTag,
		Sender:     extractAddress(from),
		Subject:    subject,
		Body:       body,
		ExternalID: msg.ID,
	}, true
}

// extractAddress returns the address inside angle brackets, or the trimmed
// header when there is none.
func extractAddress(from string) string {
	if m := senderPattern.FindStringSubmatch(from); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(from)
}
