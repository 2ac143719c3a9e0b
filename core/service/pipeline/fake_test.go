package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// fakeGateway implements out.CompletionGateway for stage tests. Counters are
// atomic because stages call the gateway from worker goroutines.
type fakeGateway struct {
	completeFn func(ctx context.Context, prompt string, temperature float32) (string, error)
	systemFn   func(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
	embedFn    func(ctx context.Context, texts []string) ([][]float32, error)

	completeCalls int32
	systemCalls   int32
	embedCalls    int32
}

func (f *fakeGateway) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	atomic.AddInt32(&f.completeCalls, 1)
	if f.completeFn == nil {
		return "", nil
	}
	return f.completeFn(ctx, prompt, temperature)
}

func (f *fakeGateway) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	atomic.AddInt32(&f.systemCalls, 1)
	if f.systemFn == nil {
		return "", nil
	}
	return f.systemFn(ctx, systemPrompt, userPrompt, temperature)
}

func (f *fakeGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.embedCalls, 1)
	if f.embedFn == nil {
		return make([][]float32, len(texts)), nil
	}
	return f.embedFn(ctx, texts)
}

func (f *fakeGateway) completed() int { return int(atomic.LoadInt32(&f.completeCalls)) }
func (f *fakeGateway) embedded() int  { return int(atomic.LoadInt32(&f.embedCalls)) }

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
