package dash

import "context"

// Interrupter is polled before every potentially blocking operation in the
// Reader; when it reports true, the operation fails with ErrInterrupted
// and the current fragment/input is released cleanly.
type Interrupter interface {
	Interrupted() bool
}

type ctxInterrupter struct {
	ctx context.Context
}

func (c ctxInterrupter) Interrupted() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// ContextInterrupter adapts a context.Context's cancellation to
// Interrupter.
func ContextInterrupter(ctx context.Context) Interrupter {
	return ctxInterrupter{ctx: ctx}
}
