package graphql

// introspectionQuery is the standard full introspection document. The TypeRef
// fragment unwraps seven levels of NON_NULL/LIST nesting, which covers any
// schema produced by mainstream servers.
const introspectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types {
      kind
      name
      description
      fields(includeDeprecated: true) {
        name
        description
        args {
          name
          description
          type { ...TypeRef }
          defaultValue
        }
        type { ...TypeRef }
        isDeprecated
        deprecationReason
      }
      inputFields {
        name
        description
        type { ...TypeRef }
        defaultValue
      }
      enumValues(includeDeprecated: true) {
        name
        description
      }
    }
  }
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType {
          kind
          name
          ofType {
            kind
            name
            ofType {
              kind
              name
              ofType { kind name }
            }
          }
        }
      }
    }
  }
}`

// simplifiedIntrospectionQuery is retried once when a server rejects the full
// document, typically because deprecated-field arguments or deep fragments are
// disabled. It trades type detail for acceptance.
const simplifiedIntrospectionQuery = `query {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types {
      kind
      name
      fields {
        name
        args {
          name
          type { kind name ofType { kind name ofType { kind name } } }
        }
        type { kind name ofType { kind name ofType { kind name } } }
      }
    }
  }
}`

const (
	kindScalar      = "SCALAR"
	kindObject      = "OBJECT"
	kindInterface   = "INTERFACE"
	kindUnion       = "UNION"
	kindEnum        = "ENUM"
	kindInputObject = "INPUT_OBJECT"
	kindList        = "LIST"
	kindNonNull     = "NON_NULL"
)

type introspectionEnvelope struct {
	Data   *introspectionData   `json:"data"`
	Errors []introspectionError `json:"errors"`
}

func (e *introspectionEnvelope) hasSchema() bool {
	return e != nil && e.Data != nil && e.Data.Schema != nil
}

func (e *introspectionEnvelope) errorMessages() []string {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	messages := make([]string, 0, len(e.Errors))
	for _, gqlErr := range e.Errors {
		messages = append(messages, gqlErr.Message)
	}
	return messages
}

type introspectionData struct {
	Schema *introspectionSchema `json:"__schema"`
}

type introspectionError struct {
	Message string `json:"message"`
}

type introspectionSchema struct {
	QueryType        *namedType          `json:"queryType"`
	MutationType     *namedType          `json:"mutationType"`
	SubscriptionType *namedType          `json:"subscriptionType"`
	Types            []introspectionType `json:"types"`
}

type namedType struct {
	Name string `json:"name"`
}

type introspectionType struct {
	Kind        string               `json:"kind"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Fields      []introspectionField `json:"fields"`
	InputFields []introspectionInput `json:"inputFields"`
	EnumValues  []introspectionEnum  `json:"enumValues"`
}

type introspectionField struct {
	Name              string               `json:"name"`
	Description       string               `json:"description"`
	Args              []introspectionInput `json:"args"`
	Type              *typeRef             `json:"type"`
	IsDeprecated      bool                 `json:"isDeprecated"`
	DeprecationReason string               `json:"deprecationReason"`
}

type introspectionInput struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Type         *typeRef `json:"type"`
	DefaultValue *string  `json:"defaultValue"`
}

type introspectionEnum struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// typeRef mirrors the recursive __Type shape: wrapper kinds (NON_NULL, LIST)
// carry no name and point at their inner type through ofType.
type typeRef struct {
	Kind   string   `json:"kind"`
	Name   string   `json:"name"`
	OfType *typeRef `json:"ofType"`
}
