package render

import "integritas-mcp/internal/events"

// Renderer emits events to an output target.
type Renderer interface {
	Emit(events.Event)
	Close() error
}

// Multi fans events out to several renderers.
type Multi []Renderer

func (m Multi) Emit(event events.Event) {
	for _, r := range m {
		if r != nil {
			r.Emit(event)
		}
	}
}

func (m Multi) Close() error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
