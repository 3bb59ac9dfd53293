package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apilens/apilens/internal/usecase"
)

type direction string

const (
	directionIncoming direction = "incoming"
	directionOutgoing direction = "outgoing"
)

type messageKind string

const (
	messageText   messageKind = "text"
	messageJSON   messageKind = "json"
	messageBinary messageKind = "binary"
)

// defaultEventName labels messages that carry no recognizable event marker.
const defaultEventName = "message"

type capturedMessage struct {
	Direction direction
	Kind      messageKind
	Raw       []byte
	Parsed    any
	Event     string
	At        time.Time
}

type captureSession struct {
	Messages []capturedMessage
	Incoming int
	Outgoing int
	Duration time.Duration
}

func (s *captureSession) record(msg capturedMessage) {
	s.Messages = append(s.Messages, msg)
	if msg.Direction == directionIncoming {
		s.Incoming++
	} else {
		s.Outgoing++
	}
}

// capture records traffic until MaxDuration elapses or MaxMessages have been
// recorded, whichever comes first. Configured test messages are written and
// recorded as outgoing traffic before the read loop starts.
func (c *Connector) capture(ctx context.Context, conn *websocket.Conn, opts usecase.CaptureOptions) *captureSession {
	maxDuration := opts.MaxDuration
	if maxDuration <= 0 {
		maxDuration = defaultCaptureDuration
	}
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultCaptureMessages
	}

	session := &captureSession{}
	start := time.Now()

	if opts.SendTestMessages {
		for _, probe := range opts.TestMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(probe)); err != nil {
				c.logger.Warn("Failed to send test message", slog.Any("error", err))
				break
			}
			session.record(classifyMessage(directionOutgoing, websocket.TextMessage, []byte(probe), time.Now()))
		}
	}

	// The read deadline is the session budget; a cancelled context collapses
	// it so the blocked read returns immediately.
	_ = conn.SetReadDeadline(start.Add(maxDuration))
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	for len(session.Messages) < maxMessages {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			// Deadline expiry, peer close and transport failure all end the
			// session; whatever was captured so far is the sample.
			break
		}
		session.record(classifyMessage(directionIncoming, messageType, data, time.Now()))
	}

	session.Duration = time.Since(start)
	return session
}

// classifyMessage tags a frame as binary, json or text. Text frames that
// parse as JSON are promoted to json and get an event name extracted.
func classifyMessage(dir direction, messageType int, data []byte, at time.Time) capturedMessage {
	msg := capturedMessage{
		Direction: dir,
		Kind:      messageText,
		Raw:       data,
		Event:     defaultEventName,
		At:        at,
	}
	if messageType == websocket.BinaryMessage {
		msg.Kind = messageBinary
		return msg
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err == nil {
		msg.Kind = messageJSON
		msg.Parsed = parsed
		msg.Event = extractEventName(parsed)
	}
	return msg
}

// extractEventName applies the Socket.IO-style conventions: the first
// element of a JSON array, or an "event"/"type" property of a JSON object.
func extractEventName(parsed any) string {
	switch v := parsed.(type) {
	case []any:
		if len(v) > 0 {
			if name, ok := v[0].(string); ok && name != "" {
				return name
			}
		}
	case map[string]any:
		if name, ok := v["event"].(string); ok && name != "" {
			return name
		}
		if name, ok := v["type"].(string); ok && name != "" {
			return name
		}
	}
	return defaultEventName
}
