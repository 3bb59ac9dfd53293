package websocket

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apilens/apilens/internal/domain"
)

// converter synthesizes a schema from a finished capture session: one
// operation per distinct event name, one reusable type per inferred pattern.
type converter struct {
	logger *slog.Logger
}

func newConverter(logger *slog.Logger) *converter {
	return &converter{logger: logger.With("component", "websocket_converter")}
}

type eventGroup struct {
	name     string
	examples []capturedMessage
	incoming bool
	outgoing bool
}

func (cv *converter) Convert(session *captureSession, source string, discoveredAt time.Time) (*domain.UniversalSchema, []string) {
	patterns := inferPatterns(session.Messages)
	detection := detectProtocol(session.Messages)
	events := groupEvents(session.Messages)

	schema := &domain.UniversalSchema{
		ID:           domain.NewSchemaID(source, discoveredAt),
		Name:         schemaName(source),
		Version:      "unknown",
		Protocol:     domain.ProtocolWebSocket,
		BaseURL:      source,
		Operations:   make([]domain.Operation, 0, len(events)),
		Types:        make(map[string]domain.SchemaField, len(patterns)),
		DiscoveredAt: discoveredAt,
		Source:       source,
		Metadata: map[string]any{
			"sessionId":        uuid.NewString(),
			"capturedMessages": len(session.Messages),
			"incomingMessages": session.Incoming,
			"outgoingMessages": session.Outgoing,
			"captureDuration":  session.Duration.String(),
			"detectedProtocol": detection.Protocol,
			"confidence":       detection.Confidence,
			"reasoning":        detection.Reasoning,
		},
	}

	for _, event := range events {
		schema.Operations = append(schema.Operations, cv.convertEvent(event, patterns))
	}
	for _, pattern := range patterns {
		typ := patternType(pattern)
		schema.Types[typ.Name] = typ
	}

	var warnings []string
	switch {
	case len(session.Messages) == 0:
		warnings = append(warnings, "no messages captured during the session; the schema has no operations")
	case len(patterns) == 0:
		warnings = append(warnings, "no recurring message patterns detected; payload schemas use single-example inference")
	}
	return schema, warnings
}

// groupEvents buckets messages by event name in first-seen order, tracking
// which directions each event was observed in.
func groupEvents(messages []capturedMessage) []*eventGroup {
	index := make(map[string]*eventGroup)
	var groups []*eventGroup

	for _, msg := range messages {
		group, ok := index[msg.Event]
		if !ok {
			group = &eventGroup{name: msg.Event}
			index[msg.Event] = group
			groups = append(groups, group)
		}
		group.examples = append(group.examples, msg)
		if msg.Direction == directionIncoming {
			group.incoming = true
		} else {
			group.outgoing = true
		}
	}
	return groups
}

func (cv *converter) convertEvent(event *eventGroup, patterns []messagePattern) domain.Operation {
	direction := "incoming"
	switch {
	case event.incoming && event.outgoing:
		direction = "bidirectional"
	case event.outgoing:
		direction = "outgoing"
	}

	op := domain.Operation{
		ID:          "message_" + sanitizeEventName(event.name),
		Name:        event.name,
		Type:        domain.OperationMessage,
		Description: fmt.Sprintf("Observed %q message (%d captured)", event.name, len(event.examples)),
		Responses:   []domain.Response{},
		Metadata: map[string]any{
			"direction": direction,
			"frequency": len(event.examples),
		},
	}

	if payload := cv.eventPayload(event, patterns); payload != nil {
		op.Parameters = []domain.Parameter{{
			Name:     "payload",
			Location: domain.LocationBody,
			Schema:   *payload,
			Required: true,
		}}
	}
	return op
}

// eventPayload picks the first inferred pattern whose required keys all
// appear in the event's first object example and references its type; when
// no pattern fits, the payload is inferred directly from that example.
func (cv *converter) eventPayload(event *eventGroup, patterns []messagePattern) *domain.SchemaField {
	example, ok := firstObjectExample(event)
	if !ok {
		return cv.rawPayload(event)
	}

	for _, pattern := range patterns {
		if requiredKeysPresent(pattern.RequiredFields, example) {
			return &domain.SchemaField{
				Name:     "payload",
				Type:     domain.TypeObject,
				Required: true,
				Ref:      patternTypeName(pattern.Signature),
			}
		}
	}

	field := inferField("payload", example, 0)
	return &field
}

func firstObjectExample(event *eventGroup) (map[string]any, bool) {
	for _, msg := range event.examples {
		if obj, ok := msg.Parsed.(map[string]any); ok {
			return obj, true
		}
	}
	return nil, false
}

func requiredKeysPresent(required []string, example map[string]any) bool {
	for _, key := range required {
		if _, ok := example[key]; !ok {
			return false
		}
	}
	return true
}

// rawPayload covers events whose examples never parsed as JSON objects.
func (cv *converter) rawPayload(event *eventGroup) *domain.SchemaField {
	first := event.examples[0]
	switch first.Kind {
	case messageBinary:
		return &domain.SchemaField{
			Name:        "payload",
			Type:        domain.TypeString,
			Constraints: &domain.FieldConstraints{Format: "binary"},
		}
	case messageJSON:
		field := inferField("payload", first.Parsed, 0)
		field.Name = "payload"
		return &field
	default:
		return &domain.SchemaField{Name: "payload", Type: domain.TypeString}
	}
}

func patternType(p messagePattern) domain.SchemaField {
	return domain.SchemaField{
		Name:       patternTypeName(p.Signature),
		Type:       domain.TypeObject,
		Properties: p.Fields,
		Metadata: map[string]any{
			"signature":      p.Signature,
			"frequency":      p.Frequency,
			"requiredFields": p.RequiredFields,
			"optionalFields": p.OptionalFields,
		},
	}
}

func patternTypeName(signature string) string {
	if signature == "" {
		return "pattern_empty"
	}
	return "pattern_" + sanitizeEventName(signature)
}

func sanitizeEventName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	cleaned := strings.Trim(string(out), "_")
	if cleaned == "" {
		return defaultEventName
	}
	return cleaned
}

func schemaName(source string) string {
	if u, err := url.Parse(source); err == nil && u.Host != "" {
		return "WebSocket API (" + u.Host + ")"
	}
	return "WebSocket API"
}
