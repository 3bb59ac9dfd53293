package graphql_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apilens/apilens/internal/adapter/outbound/graphql"
	"github.com/apilens/apilens/internal/domain"
	"github.com/apilens/apilens/internal/usecase"
)

const petsIntrospectionResponse = `{
  "data": {
    "__schema": {
      "queryType": {"name": "Query"},
      "mutationType": null,
      "subscriptionType": null,
      "types": [
        {
          "kind": "OBJECT",
          "name": "Query",
          "fields": [
            {
              "name": "pets",
              "args": [],
              "type": {
                "kind": "NON_NULL",
                "ofType": {
                  "kind": "LIST",
                  "ofType": {"kind": "NON_NULL", "ofType": {"kind": "OBJECT", "name": "Pet"}}
                }
              }
            }
          ]
        },
        {
          "kind": "OBJECT",
          "name": "Pet",
          "fields": [
            {"name": "id", "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "ID"}}},
            {"name": "name", "type": {"kind": "SCALAR", "name": "String"}}
          ]
        },
        {"kind": "SCALAR", "name": "String"},
        {"kind": "OBJECT", "name": "__Schema", "fields": []}
      ]
    }
  }
}`

func newTestConnector(t *testing.T, server *httptest.Server) *graphql.Connector {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	var client *http.Client
	if server != nil {
		client = server.Client()
	}
	return graphql.New(client, logger)
}

func TestConnector_CanHandle(t *testing.T) {
	connector := newTestConnector(t, nil)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://api.example.com/graphql", true},
		{"https://graphql.example.com/v1", true},
		{"http://localhost:8080/GraphQL", true},
		{"https://api.example.com/v1", false},
		{"ws://api.example.com/graphql", false},
		{"not a url ://graphql", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, connector.CanHandle(tc.url), "CanHandle(%q)", tc.url)
	}
}

func TestConnector_TestConnection(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	t.Run("reachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(http.MethodPost, r.Method)
			body, _ := io.ReadAll(r.Body)
			assert.Contains(string(body), "__typename")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"__typename":"Query"}}`)
		}))
		t.Cleanup(server.Close)

		result := newTestConnector(t, server).TestConnection(ctx, usecase.ConnectorConfig{URL: server.URL + "/graphql"})
		assert.True(result.Success)
		assert.Equal(http.StatusOK, result.Metadata["statusCode"])
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		result := newTestConnector(t, nil).TestConnection(ctx, usecase.ConnectorConfig{URL: url + "/graphql"})
		assert.False(result.Success)
		assert.Contains(result.Error, "failed to reach")
	})
}

func TestConnector_Introspect_Success(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "__typename") {
			fmt.Fprint(w, `{"data":{"__typename":"Query"}}`)
			return
		}
		fmt.Fprint(w, petsIntrospectionResponse)
	}))
	t.Cleanup(server.Close)

	connector := newTestConnector(t, server)
	result, err := connector.Introspect(context.Background(), usecase.ConnectorConfig{URL: server.URL + "/graphql"})

	require.NoError(err)
	require.True(result.Success, "error: %s", result.Error)
	require.NotNil(result.Schema)
	assert.Equal(domain.ProtocolGraphQL, result.Schema.Protocol)
	assert.Empty(result.Warnings)

	require.Len(result.Schema.Operations, 1)
	assert.Equal("query_pets", result.Schema.Operations[0].ID)
	assert.Contains(result.Schema.Types, "Pet")
	assert.NotContains(result.Schema.Types, "__Schema")
}

func TestConnector_Introspect_FallsBackToSimplifiedQuery(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var introspectionPosts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		payload := string(body)

		switch {
		case strings.Contains(payload, "__typename"):
			fmt.Fprint(w, `{"data":{"__typename":"Query"}}`)
		case strings.Contains(payload, "IntrospectionQuery"):
			introspectionPosts++
			fmt.Fprint(w, `{"errors":[{"message":"introspection depth limit exceeded"}]}`)
		default:
			introspectionPosts++
			fmt.Fprint(w, petsIntrospectionResponse)
		}
	}))
	t.Cleanup(server.Close)

	connector := newTestConnector(t, server)
	result, err := connector.Introspect(context.Background(), usecase.ConnectorConfig{URL: server.URL + "/graphql"})

	require.NoError(err)
	require.True(result.Success, "error: %s", result.Error)
	assert.Equal(2, introspectionPosts, "exactly one retry with the simplified query")
	require.Len(result.Warnings, 1)
	assert.Contains(result.Warnings[0], "simplified")
	require.Len(result.Schema.Operations, 1)
}

func TestConnector_Introspect_BothQueriesRejected(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "__typename") {
			fmt.Fprint(w, `{"data":{"__typename":"Query"}}`)
			return
		}
		fmt.Fprint(w, `{"errors":[{"message":"introspection is disabled"}]}`)
	}))
	t.Cleanup(server.Close)

	result, err := newTestConnector(t, server).Introspect(context.Background(), usecase.ConnectorConfig{URL: server.URL + "/graphql"})
	require.NoError(err, "a rejecting endpoint is a result, not an error")
	assert.False(result.Success)
	assert.Contains(result.Error, string(domain.ErrCodeIntrospection))
	assert.Contains(result.Error, "rejected both introspection queries")
	assert.Contains(result.Error, "introspection is disabled")
}

func TestConnector_Introspect_AuthDenied(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	result, err := newTestConnector(t, server).Introspect(context.Background(), usecase.ConnectorConfig{URL: server.URL + "/graphql"})
	require.NoError(err)
	assert.False(result.Success)
	assert.Contains(result.Error, string(domain.ErrCodeAuthentication))
	assert.Contains(result.Error, "401")
}

func TestConnector_Introspect_NonJSONResponse(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>not graphql</html>")
	}))
	t.Cleanup(server.Close)

	result, err := newTestConnector(t, server).Introspect(context.Background(), usecase.ConnectorConfig{URL: server.URL + "/graphql"})
	require.NoError(err)
	assert.False(result.Success)
	assert.Contains(result.Error, string(domain.ErrCodeSchemaParsing))
}

func TestConnector_Introspect_UnreachableTarget(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	result, err := newTestConnector(t, nil).Introspect(context.Background(), usecase.ConnectorConfig{URL: url + "/graphql"})
	require.NoError(err)
	assert.False(result.Success)
	assert.Contains(result.Error, string(domain.ErrCodeConnection))
}

func TestConnector_Introspect_EmptyURL(t *testing.T) {
	assert := assert.New(t)

	result, err := newTestConnector(t, nil).Introspect(context.Background(), usecase.ConnectorConfig{})
	assert.Nil(result)
	assert.Equal(domain.ErrCodeConfiguration, domain.CodeOf(err))
}
