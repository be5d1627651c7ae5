package shutdown

import (
	"context"
	"io"
	"net/http"
)

// namedComponent adapts a shutdown function to Component.
type namedComponent struct {
	name string
	fn   func(ctx context.Context) error
}

func (c namedComponent) Name() string { return c.name }

func (c namedComponent) Shutdown(ctx context.Context) error { return c.fn(ctx) }

// NewHTTPServerComponent stops the headless view server. New connections are
// refused and in-flight requests drain until ctx ends.
func NewHTTPServerComponent(name string, server *http.Server) Component {
	return namedComponent{name: name, fn: server.Shutdown}
}

// NewCloserComponent closes c, typically the console log file. If ctx ends
// first it returns ctx.Err() and the close finishes in the background.
func NewCloserComponent(name string, c io.Closer) Component {
	return namedComponent{name: name, fn: func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- c.Close() }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
}
