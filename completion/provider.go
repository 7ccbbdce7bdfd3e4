package completion

import "context"

// Request is the structured prompt for one completion. System carries the
// protocol/persona instructions and tool catalog, Task the user's task
// description, and Transcript everything that happened so far.
type Request struct {
	System     string
	Task       string
	Transcript string

	// StopSequences are passed to the provider so generation halts after
	// the call block's end marker.
	StopSequences []string
}

// Provider is a black-box text-in/text-out completion function. The shape
// of the response is always plain text regardless of model backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

func (f ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
