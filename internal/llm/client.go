package llm

import (
	"context"
	"errors"
	"io"
)

// Stream yields the model's reply incrementally.  Recv returns the next text
// chunk, io.EOF once the reply is complete, or any transport error.  Close
// releases the underlying connection and is safe to call more than once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Conversation is one persistent chat handle.  It carries the system
// instruction and all prior turns, so callers only send the prompt for the
// current turn.  Implementations record the assistant reply in their own
// history once the stream is fully consumed.
type Conversation interface {
	Send(ctx context.Context, prompt string) (Stream, error)
}

// Client creates conversation handles.  One handle is created per session and
// discarded when the session is cleared.
type Client interface {
	NewConversation(systemInstruction string) Conversation
}

// Collect drains a stream into the full reply text, forwarding each chunk to
// sink when one is provided.  The stream is always closed.
func Collect(s Stream, sink func(chunk string)) (string, error) {
	defer s.Close()
	var full []byte
	for {
		chunk, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(full), nil
			}
			return string(full), err
		}
		if chunk == "" {
			continue
		}
		full = append(full, chunk...)
		if sink != nil {
			sink(chunk)
		}
	}
}
