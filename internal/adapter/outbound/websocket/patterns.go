package websocket

import (
	"math"
	"sort"
	"strings"

	"github.com/apilens/apilens/internal/domain"
)

const (
	// minPatternFrequency is the evidence threshold: a signature seen fewer
	// times is noise, not a pattern.
	minPatternFrequency = 2
	// maxFieldDepth bounds nested-object analysis.
	maxFieldDepth = 3
)

// messagePattern is a recurring message shape inferred from captured JSON
// objects sharing one key signature.
type messagePattern struct {
	Signature      string
	Frequency      int
	RequiredFields []string
	OptionalFields []string
	Fields         map[string]domain.SchemaField
}

// inferPatterns clusters JSON object messages by their sorted top-level key
// signature, in first-seen order. Arrays and scalar payloads carry no named
// keys and cannot form patterns.
func inferPatterns(messages []capturedMessage) []messagePattern {
	groups := make(map[string][]map[string]any)
	var order []string

	for _, msg := range messages {
		obj, ok := msg.Parsed.(map[string]any)
		if !ok {
			continue
		}
		sig := signatureOf(obj)
		if _, seen := groups[sig]; !seen {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], obj)
	}

	patterns := make([]messagePattern, 0, len(groups))
	for _, sig := range order {
		examples := groups[sig]
		if len(examples) < minPatternFrequency {
			continue
		}
		patterns = append(patterns, buildPattern(sig, examples))
	}
	return patterns
}

func signatureOf(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// buildPattern splits keys into required (present in every example) and
// optional (present in some), typing each key from the first example that
// carries it.
func buildPattern(sig string, examples []map[string]any) messagePattern {
	seenIn := make(map[string]int)
	fields := make(map[string]domain.SchemaField)

	for _, example := range examples {
		for key, value := range example {
			seenIn[key]++
			if _, ok := fields[key]; !ok {
				fields[key] = inferField(key, value, 1)
			}
		}
	}

	var required, optional []string
	for key, count := range seenIn {
		if count == len(examples) {
			required = append(required, key)
		} else {
			optional = append(optional, key)
		}
	}
	sort.Strings(required)
	sort.Strings(optional)

	for _, key := range required {
		field := fields[key]
		field.Required = true
		fields[key] = field
	}

	return messagePattern{
		Signature:      sig,
		Frequency:      len(examples),
		RequiredFields: required,
		OptionalFields: optional,
		Fields:         fields,
	}
}

// inferField types a value from a single example. JSON numbers with no
// fractional part count as integers. Objects are analyzed up to
// maxFieldDepth key levels; deeper objects stay opaque.
func inferField(name string, value any, depth int) domain.SchemaField {
	field := domain.SchemaField{Name: name}

	switch v := value.(type) {
	case nil:
		field.Type = domain.TypeNull
	case bool:
		field.Type = domain.TypeBoolean
	case float64:
		if v == math.Trunc(v) {
			field.Type = domain.TypeInteger
		} else {
			field.Type = domain.TypeNumber
		}
	case string:
		field.Type = domain.TypeString
	case []any:
		field.Type = domain.TypeArray
		item := domain.SchemaField{Name: "item", Type: domain.TypeUnknown}
		if len(v) > 0 {
			item = inferField("item", v[0], depth)
		}
		field.Items = &item
	case map[string]any:
		field.Type = domain.TypeObject
		if depth < maxFieldDepth && len(v) > 0 {
			props := make(map[string]domain.SchemaField, len(v))
			for key, nested := range v {
				props[key] = inferField(key, nested, depth+1)
			}
			field.Properties = props
		}
	default:
		field.Type = domain.TypeUnknown
	}
	return field
}
