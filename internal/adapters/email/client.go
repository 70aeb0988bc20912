package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// gmailUser addresses the authenticated mailbox.
const gmailUser = "me"

// MessageSource lists and fetches origin messages. Implementations are read
// only: they never modify, label or acknowledge a message.
type MessageSource interface {
	// List returns up to maxResults message ids, newest first.
	List(ctx context.Context, maxResults int64) ([]string, error)
	// Fetch returns the message headers and its plain text body, which is
	// empty when the message has none.
	Fetch(ctx context.Context, id string) (RawMessage, string, error)
}

// GmailSource reads messages through the Gmail v1 API.
type GmailSource struct {
	svc   *gmail.Service
	query string
}

// NewGmailSource creates a source for the mailbox the client options
// authenticate, usually option.WithTokenSource(NewTokenSource(...)).
// An empty query selects the inbox.
func NewGmailSource(ctx context.Context, query string, opts ...option.ClientOption) (*GmailSource, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	if query == "" {
		query = "label:INBOX"
	}
	return &GmailSource{svc: svc, query: query}, nil
}

func (s *GmailSource) List(ctx context.Context, maxResults int64) ([]string, error) {
	resp, err := s.svc.Users.Messages.List(gmailUser).
		Q(s.query).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.Id == "" {
			continue
		}
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (s *GmailSource) Fetch(ctx context.Context, id string) (RawMessage, string, error) {
	msg, err := s.svc.Users.Messages.Get(gmailUser, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return RawMessage{}, "", fmt.Errorf("get message %s: %w", id, err)
	}

	raw := RawMessage{ID: msg.Id}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if h == nil {
				continue
			}
			raw.Headers = append(raw.Headers, Header{Name: h.Name, Value: h.Value})
		}
	}

	body, err := extractPlainText(msg.Payload)
	if err != nil {
		return RawMessage{}, "", fmt.Errorf("decode body of message %s: %w", id, err)
	}
	return raw, body, nil
}

// extractPlainText returns the first text/plain body found depth first, or ""
// when the payload has none.
func extractPlainText(part *gmail.MessagePart) (string, error) {
	if part == nil {
		return "", nil
	}
	if isPlainText(part) {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if child == nil {
			continue
		}
		if isPlainText(child) {
			return decodeBody(child.Body.Data)
		}
		if len(child.Parts) > 0 {
			nested, err := extractPlainText(child)
			if err != nil || nested != "" {
				return nested, err
			}
		}
	}
	return "", nil
}

func isPlainText(part *gmail.MessagePart) bool {
	return strings.EqualFold(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != ""
}

// decodeBody accepts base64url with or without padding, and the standard
// alphabet.
func decodeBody(data string) (string, error) {
	data = strings.TrimRight(data, "=")
	data = strings.NewReplacer("+", "-", "/", "_").Replace(data)
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
