package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apilens/apilens/internal/domain"
)

func TestErrorFormatting(t *testing.T) {
	assert := assert.New(t)

	cause := errors.New("dial tcp: connection refused")
	err := domain.NewConnectionError("failed to reach http://api.example.com", cause)

	assert.Equal("connection: failed to reach http://api.example.com: dial tcp: connection refused", err.Error())
	assert.ErrorIs(err, cause)

	bare := domain.NewValidationError("missing required fields: info.title, paths", nil)
	assert.Equal("validation: missing required fields: info.title, paths", bare.Error())
}

func TestCodeOf(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		name string
		err  error
		want domain.ErrorCode
	}{
		{"connection", domain.NewConnectionError("down", nil), domain.ErrCodeConnection},
		{"authentication", domain.NewAuthenticationError("forbidden", nil), domain.ErrCodeAuthentication},
		{"schema parsing", domain.NewSchemaParsingError("bad yaml", nil), domain.ErrCodeSchemaParsing},
		{"validation", domain.NewValidationError("missing", nil), domain.ErrCodeValidation},
		{"configuration", domain.NewConfigurationError("bad protocol", nil), domain.ErrCodeConfiguration},
		{"connector", domain.NewConnectorError("internal", nil), domain.ErrCodeConnector},
		{"introspection", domain.NewIntrospectionError("unexpected", errors.New("boom")), domain.ErrCodeIntrospection},
		{"storage", domain.NewStorageError("write failed", nil), domain.ErrCodeStorage},
		{"unclassified", errors.New("plain"), domain.ErrorCode("")},
		{"nil", nil, domain.ErrorCode("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(tt.want, domain.CodeOf(tt.err))
		})
	}
}

func TestCodeOfUnwrapsNestedErrors(t *testing.T) {
	assert := assert.New(t)

	inner := domain.NewStorageError("index write failed", errors.New("disk full"))
	wrapped := fmt.Errorf("query aborted: %w", inner)

	assert.Equal(domain.ErrCodeStorage, domain.CodeOf(wrapped))
	assert.True(domain.IsCode(wrapped, domain.ErrCodeStorage))
	assert.False(domain.IsCode(wrapped, domain.ErrCodeConnection))
}

func TestIntrospectionErrorKeepsOriginalMessage(t *testing.T) {
	assert := assert.New(t)

	original := errors.New("unexpected token at byte 17")
	err := domain.NewIntrospectionError("introspection failed", original)

	assert.Contains(err.Error(), "unexpected token at byte 17")
	assert.ErrorIs(err, original)
}
