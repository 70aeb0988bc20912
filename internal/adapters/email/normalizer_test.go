package email

import (
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

func newTestNormalizer() (*Normalizer, *watermill.CaptureLoggerAdapter) {
	capture := watermill.NewCaptureLogger()
	return NewNormalizer(loggingpkg.NewWatermillServiceLogger(capture)), capture
}

var johnMessage = RawMessage{
	ID: "12345",
	Headers: []Header{
		{Name: "From", Value: "John Doe <john@example.com>"},
		{Name: "Subject", Value: "Hello World"},
	},
}

func TestNormalizeMapsHeaders(t *testing.T) {
	n, _ := newTestNormalizer()

	got, ok := n.Normalize(johnMessage, "Hello")
	require.True(t, ok)
	assert.Equal(t, events.IntakeCandidate{
		Source:     "email",
		Sender:     "john@example.com",
		Subject:    "Hello World",
		Body:       "Hello",
		ExternalID: "12345",
	}, got)
}

func TestNormalizeHardensBody(t *testing.T) {
	n, _ := newTestNormalizer()

	got, ok := n.Normalize(johnMessage, "Hello <b>World</b>\r\n\x00\x07This is a test.")
	require.True(t, ok)
	assert.Equal(t, "Hello World\nThis is a test.", got.Body)

	got, ok = n.Normalize(johnMessage, strings.Repeat("A", 11000))
	require.True(t, ok)
	assert.Len(t, got.Body, 10000)
}

func TestNormalizeDropsEmptyBodies(t *testing.T) {
	n, capture := newTestNormalizer()

	for _, body := range []string{"   ", "\x00\x01\x02", "<html><body></body></html>"} {
		_, ok := n.Normalize(johnMessage, body)
		assert.False(t, ok, "body %q should be dropped", body)
	}

	assert.True(t, capture.Has(watermill.CapturedMessage{
		Level:  watermill.InfoLogLevel,
		Msg:    "Dropping message: empty body after hardening",
		Fields: watermill.LogFields{"component": "email_normalizer", "external_id": "12345", "severity": "warn"},
	}), "expected a drop warning, got %+v", capture.Captured())
}

func TestNormalizeDropsMessagesWithoutID(t *testing.T) {
	n, capture := newTestNormalizer()

	_, ok := n.Normalize(RawMessage{Headers: johnMessage.Headers}, "Hello")
	assert.False(t, ok)
	assert.NotEmpty(t, capture.Captured()[watermill.InfoLogLevel])
}

func TestNormalizeHeaderDefaults(t *testing.T) {
	n, _ := newTestNormalizer()

	cases := []struct {
		name    string
		headers []Header
		sender  string
		subject string
	}{
		{"missing subject", []Header{{Name: "From", Value: "me@me.com"}}, "me@me.com", "No Subject"},
		{"no headers", nil, "unknown", "No Subject"},
		{"empty values", []Header{{Name: "From", Value: ""}, {Name: "Subject", Value: ""}}, "unknown", "No Subject"},
		{"case-insensitive names", []Header{{Name: "FROM", Value: "x@y.z"}, {Name: "subject", Value: "lower"}}, "x@y.z", "lower"},
		{"trims bare sender", []Header{{Name: "From", Value: "  bare@example.com  "}}, "bare@example.com", "No Subject"},
		{"address inside brackets", []Header{{Name: "From", Value: "\"Ops\" < ops@example.com >"}}, "ops@example.com", "No Subject"},
		{"brackets without address", []Header{{Name: "From", Value: "Someone <nobody>"}}, "Someone <nobody>", "No Subject"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := n.Normalize(RawMessage{ID: "x", Headers: tc.headers}, "Hello")
			require.True(t, ok)
			assert.Equal(t, tc.sender, got.Sender)
			assert.Equal(t, tc.subject, got.Subject)
		})
	}
}
