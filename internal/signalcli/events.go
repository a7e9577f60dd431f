package signalcli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrStreamClosed reports that the daemon closed the event stream.
// The stream is expected to stay open for the process lifetime, so
// this is fatal: recovery is the caller's responsibility, typically by
// letting the process exit and restart under outer supervision.
var ErrStreamClosed = errors.New("event stream closed")

// maxEventLine bounds a single SSE line. Envelope payloads are small;
// this is headroom, not an expected size.
const maxEventLine = 1 << 20

// Listen opens the daemon's event stream and invokes handler for every
// decoded "receive" envelope, one at a time on the calling goroutine.
// It fails fast if the stream endpoint does not answer 200, drops
// frames that do not parse without terminating the stream, and returns
// ErrStreamClosed if the underlying read ever hits end of stream.
// Cancelling ctx makes Listen return ctx.Err().
func (c *Client) Listen(ctx context.Context, handler func(Envelope)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/events", nil)
	if err != nil {
		return fmt.Errorf("build events request: %w", err)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("connect to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream status %d", resp.StatusCode)
	}

	c.logger.Info("connected to event stream")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)

	var frame []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line != "" {
			frame = append(frame, line)
			continue
		}
		if len(frame) == 0 {
			continue
		}

		if envelope, ok := c.parseFrame(frame); ok {
			handler(envelope)
		}
		frame = frame[:0]
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	return ErrStreamClosed
}

// parseFrame decodes one SSE frame. Only "receive" frames with a valid
// JSON envelope payload are handed on; anything else is dropped. A
// malformed frame is logged and skipped so one bad event never takes
// the stream down.
func (c *Client) parseFrame(lines []string) (Envelope, bool) {
	var eventType, data string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(line[len("data:"):])
		}
	}

	if eventType != "receive" || data == "" {
		return Envelope{}, false
	}

	var event receiveEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		c.logger.Warn("dropping unparsable receive event", "err", err)
		return Envelope{}, false
	}
	return event.Envelope, true
}
