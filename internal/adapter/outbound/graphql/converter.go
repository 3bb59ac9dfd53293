package graphql

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/apilens/apilens/internal/domain"
)

// converter maps an introspection response to the canonical schema model.
type converter struct {
	logger *slog.Logger
}

func newConverter(logger *slog.Logger) *converter {
	return &converter{logger: logger.With("component", "graphql_converter")}
}

// Convert walks the introspected type list once: fields of the root operation
// types become operations, every other object-like type lands in the types
// map. Internal __ types are skipped.
func (cv *converter) Convert(s *introspectionSchema, source string, discoveredAt time.Time) *domain.UniversalSchema {
	schema := &domain.UniversalSchema{
		ID:           domain.NewSchemaID(source, discoveredAt),
		Name:         schemaName(source),
		Version:      "unknown",
		Protocol:     domain.ProtocolGraphQL,
		BaseURL:      source,
		Operations:   []domain.Operation{},
		Types:        map[string]domain.SchemaField{},
		DiscoveredAt: discoveredAt,
		Source:       source,
	}

	roots := make(map[string]domain.OperationType, 3)
	if s.QueryType != nil && s.QueryType.Name != "" {
		roots[s.QueryType.Name] = domain.OperationQuery
	}
	if s.MutationType != nil && s.MutationType.Name != "" {
		roots[s.MutationType.Name] = domain.OperationMutation
	}
	if s.SubscriptionType != nil && s.SubscriptionType.Name != "" {
		roots[s.SubscriptionType.Name] = domain.OperationSubscription
	}

	for _, typ := range s.Types {
		if strings.HasPrefix(typ.Name, "__") {
			continue
		}
		if opType, ok := roots[typ.Name]; ok {
			for _, field := range typ.Fields {
				schema.Operations = append(schema.Operations, cv.convertField(field, opType))
			}
			continue
		}
		switch typ.Kind {
		case kindObject, kindInterface, kindInputObject:
			schema.Types[typ.Name] = cv.convertType(typ)
		}
	}
	return schema
}

func (cv *converter) convertField(field introspectionField, opType domain.OperationType) domain.Operation {
	op := domain.Operation{
		ID:          string(opType) + "_" + field.Name,
		Name:        field.Name,
		Type:        opType,
		Description: field.Description,
		Deprecated:  field.IsDeprecated,
		Parameters:  make([]domain.Parameter, 0, len(field.Args)),
	}

	for _, arg := range field.Args {
		argSchema := cv.typeRefToField(arg.Type, arg.Name)
		if arg.DefaultValue != nil {
			argSchema.DefaultValue = *arg.DefaultValue
		}
		op.Parameters = append(op.Parameters, domain.Parameter{
			Name:        arg.Name,
			Location:    domain.LocationQuery,
			Schema:      argSchema,
			Required:    argSchema.Required,
			Description: arg.Description,
		})
	}

	response := cv.typeRefToField(field.Type, "response")
	op.Responses = []domain.Response{{
		StatusCode:  domain.StatusSuccess,
		Description: "Successful " + string(opType) + " result",
		Schema:      &response,
	}}

	if field.DeprecationReason != "" {
		op.Metadata = map[string]any{"deprecationReason": field.DeprecationReason}
	}
	return op
}

// convertType flattens an object, interface or input object into a canonical
// object field. Output fields and input fields never coexist on one type.
func (cv *converter) convertType(typ introspectionType) domain.SchemaField {
	field := domain.SchemaField{
		Name:        typ.Name,
		Type:        domain.TypeObject,
		Description: typ.Description,
	}

	props := make(map[string]domain.SchemaField, len(typ.Fields)+len(typ.InputFields))
	for _, f := range typ.Fields {
		prop := cv.typeRefToField(f.Type, f.Name)
		prop.Description = f.Description
		props[f.Name] = prop
	}
	for _, in := range typ.InputFields {
		prop := cv.typeRefToField(in.Type, in.Name)
		prop.Description = in.Description
		if in.DefaultValue != nil {
			prop.DefaultValue = *in.DefaultValue
		}
		props[in.Name] = prop
	}
	if len(props) > 0 {
		field.Properties = props
	}
	return field
}

// typeRefToField unwraps NON_NULL/LIST wrappers and maps the named type.
// A LIST at any depth makes the field an array (nested lists flatten to one
// level); a NON_NULL at any depth marks it required.
func (cv *converter) typeRefToField(ref *typeRef, name string) domain.SchemaField {
	named, isList, required := unwrapTypeRef(ref)

	base := domain.SchemaField{Name: name, Type: domain.TypeUnknown}
	if named != nil {
		switch named.Kind {
		case kindScalar:
			base.Type = scalarDataType(named.Name)
		case kindEnum:
			base.Type = domain.TypeString
		case kindObject, kindInterface, kindUnion, kindInputObject:
			base.Type = domain.TypeObject
			base.Ref = named.Name
		default:
			cv.logger.Warn("Unhandled type kind in introspection response",
				slog.String("kind", named.Kind), slog.String("field", name))
		}
	}

	if isList {
		item := base
		item.Name = "item"
		return domain.SchemaField{Name: name, Type: domain.TypeArray, Required: required, Items: &item}
	}
	base.Required = required
	return base
}

func unwrapTypeRef(ref *typeRef) (named *typeRef, isList, required bool) {
	for current := ref; current != nil; current = current.OfType {
		switch current.Kind {
		case kindNonNull:
			required = true
		case kindList:
			isList = true
		default:
			return current, isList, required
		}
	}
	return nil, isList, required
}

// scalarDataType maps built-in scalars; custom scalars serialize as strings.
func scalarDataType(name string) domain.DataType {
	switch name {
	case "Int":
		return domain.TypeInteger
	case "Float":
		return domain.TypeNumber
	case "Boolean":
		return domain.TypeBoolean
	case "String", "ID":
		return domain.TypeString
	default:
		return domain.TypeString
	}
}

func schemaName(source string) string {
	if u, err := url.Parse(source); err == nil && u.Host != "" {
		return "GraphQL API (" + u.Host + ")"
	}
	return "GraphQL API"
}
