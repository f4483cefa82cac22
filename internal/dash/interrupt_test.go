package dash

import (
	"context"
	"testing"
)

func TestContextInterrupter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	i := ContextInterrupter(ctx)

	if i.Interrupted() {
		t.Fatal("expected not interrupted before cancel")
	}

	cancel()

	if !i.Interrupted() {
		t.Fatal("expected interrupted after cancel")
	}
}
