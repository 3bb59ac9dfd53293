package export_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apilens/apilens/internal/domain"
	"github.com/apilens/apilens/internal/export"
)

func sampleSchema() *domain.UniversalSchema {
	return &domain.UniversalSchema{
		ID:       "abc123-1",
		Name:     "Petstore",
		Version:  "1.0.0",
		Protocol: domain.ProtocolREST,
		BaseURL:  "https://petstore.example.com/v2",
		Operations: []domain.Operation{{
			ID:     "listPets",
			Name:   "listPets",
			Type:   domain.OperationEndpoint,
			Method: "GET",
			Path:   "/pet",
		}},
		Types: map[string]domain.SchemaField{
			"Pet": {Name: "Pet", Type: domain.TypeObject},
		},
		DiscoveredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Source:       "https://petstore.example.com/swagger.json",
	}
}

func TestEncodeJSON_RoundTrips(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	schema := sampleSchema()
	data, err := export.EncodeJSON(schema)
	require.NoError(err)
	assert.Contains(string(data), `"discoveredAt"`)

	var decoded domain.UniversalSchema
	require.NoError(json.Unmarshal(data, &decoded))
	assert.Equal(*schema, decoded)
}

func TestEncodeYAML_KeepsCanonicalKeys(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	data, err := export.EncodeYAML(sampleSchema())
	require.NoError(err)

	out := string(data)
	assert.Contains(out, "baseUrl:", "YAML keys follow the JSON field names")
	assert.Contains(out, "discoveredAt:")
	assert.Contains(out, "operations:")
	assert.Contains(out, "Petstore")
}

func TestEncode_FormatDispatch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	schema := sampleSchema()

	data, err := export.Encode(schema, export.FormatJSON)
	require.NoError(err)
	assert.True(json.Valid(data))

	data, err = export.Encode(schema, "")
	require.NoError(err)
	assert.True(json.Valid(data), "empty format defaults to JSON")

	_, err = export.Encode(schema, export.FormatYAML)
	require.NoError(err)

	_, err = export.Encode(schema, "toml")
	assert.ErrorContains(err, "unsupported export format")

	_, err = export.Encode(nil, export.FormatJSON)
	assert.Error(err)
}
