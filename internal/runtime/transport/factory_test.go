package transport

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func TestDefaultFactoryRequiresConfig(t *testing.T) {
	if _, err := DefaultFactory().Build(context.Background(), nil, watermill.NopLogger{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
