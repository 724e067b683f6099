package a2a

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

const maxEventSize = 4 * 1024 * 1024

// Stream is a server-sent event stream of JSON-RPC responses
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	closeOnce sync.Once
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &Stream{body: body, scanner: scanner}
}

// Recv returns the next event. It returns io.EOF when the server ends the
// stream and a *JSONRPCError when the server reports a failure.
func (s *Stream) Recv() (StreamEvent, error) {
	var data strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()

		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			return decodeStreamPayload(data.String())
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event names, ids and comments carry nothing we need
		}
	}

	if err := s.scanner.Err(); err != nil {
		return StreamEvent{}, fmt.Errorf("stream read failed: %w", err)
	}
	if data.Len() > 0 {
		return decodeStreamPayload(data.String())
	}
	return StreamEvent{}, io.EOF
}

// Close releases the underlying connection
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

func decodeStreamPayload(payload string) (StreamEvent, error) {
	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return StreamEvent{}, fmt.Errorf("malformed stream payload: %w", err)
	}
	if resp.Error != nil {
		return StreamEvent{}, resp.Error
	}
	return parseStreamEvent(resp.Result)
}
