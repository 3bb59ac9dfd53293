package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectProtocol(t *testing.T) {
	tests := []struct {
		name       string
		raws       []string
		protocol   string
		confidence float64
	}{
		{
			name:       "no messages",
			raws:       nil,
			protocol:   "raw",
			confidence: 0.5,
		},
		{
			name:       "plain text only",
			raws:       []string{"hello", "world"},
			protocol:   "raw",
			confidence: 0.5,
		},
		{
			name:       "json payloads",
			raws:       []string{`{"id": 1}`, `{"id": 2}`},
			protocol:   "json",
			confidence: 0.7,
		},
		{
			name:       "socket.io frame prefix",
			raws:       []string{`42["chat",{"text":"hi"}]`},
			protocol:   "socket.io",
			confidence: 0.8,
		},
		{
			name:       "socket.io event envelope",
			raws:       []string{`{"event": "chat", "data": {"text": "hi"}}`},
			protocol:   "socket.io",
			confidence: 0.8,
		},
		{
			name:       "event key alone is not socket.io",
			raws:       []string{`{"event": "chat"}`},
			protocol:   "json",
			confidence: 0.7,
		},
		{
			name:       "stomp command frames",
			raws:       []string{"SEND\ndestination:/queue/a\n\nhello\x00"},
			protocol:   "stomp",
			confidence: 0.9,
		},
		{
			name:       "stomp wins over socket.io",
			raws:       []string{`42["chat",{}]`, "CONNECT\naccept-version:1.2\n\n\x00"},
			protocol:   "stomp",
			confidence: 0.9,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			var messages []capturedMessage
			for _, raw := range tc.raws {
				messages = append(messages, textMsg(t, directionIncoming, raw))
			}

			detection := detectProtocol(messages)
			assert.Equal(tc.protocol, detection.Protocol)
			assert.InDelta(tc.confidence, detection.Confidence, 0.001)
			assert.NotEmpty(detection.Reasoning)
		})
	}
}
