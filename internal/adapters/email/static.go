package email

import (
	"context"
	"fmt"
	"sync"
)

// StaticMessage is one canned message served by a StaticSource.
type StaticMessage struct {
	Message RawMessage
	Body    string
}

// StaticSource is an in-memory MessageSource for demos and tests. It lists
// messages in insertion order, newest last.
type StaticSource struct {
	mu       sync.Mutex
	order    []string
	messages map[string]StaticMessage
}

func NewStaticSource(msgs ...StaticMessage) *StaticSource {
	s := &StaticSource{messages: make(map[string]StaticMessage)}
	for _, m := range msgs {
		s.Add(m)
	}
	return s
}

// Add stores m, replacing any message with the same id.
func (s *StaticSource) Add(m StaticMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.Message.ID]; !ok {
		s.order = append(s.order, m.Message.ID)
	}
	s.messages[m.Message.ID] = m
}

func (s *StaticSource) List(ctx context.Context, maxResults int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.order))
	if maxResults > 0 && maxResults < n {
		n = maxResults
	}
	out := make([]string, n)
	copy(out, s.order[:n])
	return out, nil
}

func (s *StaticSource) Fetch(ctx context.Context, id string) (RawMessage, string, error) {
	if err := ctx.Err(); err != nil {
		return RawMessage{}, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return RawMessage{}, "", fmt.Errorf("message %s not found", id)
	}
	return m.Message, m.Body, nil
}
