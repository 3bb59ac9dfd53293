package websocket

import "strings"

type protocolDetection struct {
	Protocol   string
	Confidence float64
	Reasoning  string
}

// detectProtocol inspects captured payloads for framing signatures. Checks
// run weakest to strongest so a later, stronger match overwrites an earlier
// one: plain JSON (0.7), Socket.IO (0.8), STOMP (0.9). With no signal at all
// the traffic is reported as raw (0.5).
func detectProtocol(messages []capturedMessage) protocolDetection {
	detection := protocolDetection{
		Protocol:   "raw",
		Confidence: 0.5,
		Reasoning:  "no structured framing detected in captured messages",
	}

	for _, msg := range messages {
		if msg.Kind == messageJSON {
			detection = protocolDetection{
				Protocol:   "json",
				Confidence: 0.7,
				Reasoning:  "captured messages parse as plain JSON",
			}
			break
		}
	}

	for _, msg := range messages {
		if strings.HasPrefix(string(msg.Raw), "42") || hasSocketIOEnvelope(msg.Parsed) {
			detection = protocolDetection{
				Protocol:   "socket.io",
				Confidence: 0.8,
				Reasoning:  "Socket.IO frame prefix or event/data envelope detected",
			}
			break
		}
	}

	for _, msg := range messages {
		raw := string(msg.Raw)
		if strings.HasPrefix(raw, "CONNECT") || strings.HasPrefix(raw, "SEND") || strings.HasPrefix(raw, "MESSAGE") {
			detection = protocolDetection{
				Protocol:   "stomp",
				Confidence: 0.9,
				Reasoning:  "STOMP command frame detected",
			}
			break
		}
	}

	return detection
}

func hasSocketIOEnvelope(parsed any) bool {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return false
	}
	_, hasEvent := obj["event"]
	_, hasData := obj["data"]
	return hasEvent && hasData
}
