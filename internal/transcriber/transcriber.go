package transcriber

import (
	"context"
	"io"
)

// Client defines the capability to turn recorded speech into text.
type Client interface {
	// Transcribe reads audio from r (seek not required). filename carries the
	// extension the service uses to detect the format; credential authenticates
	// the call.
	Transcribe(ctx context.Context, r io.Reader, filename, credential string) (string, error)
}
