package httpx

import (
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

func schemaOf(typ string) *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{typ}}
}

func objectOf(required []string, props map[string]*openapi3.Schema) *openapi3.SchemaRef {
	s := schemaOf(openapi3.TypeObject)
	s.Required = required
	s.Properties = make(openapi3.Schemas, len(props))
	for name, p := range props {
		s.Properties[name] = &openapi3.SchemaRef{Value: p}
	}
	return &openapi3.SchemaRef{Value: s}
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	s := schemaOf(openapi3.TypeArray)
	s.Items = items
	return &openapi3.SchemaRef{Value: s}
}

func int64Schema() *openapi3.Schema {
	s := schemaOf(openapi3.TypeInteger)
	s.Format = "int64"
	return s
}

func dateTimeSchema() *openapi3.Schema {
	s := schemaOf(openapi3.TypeString)
	s.Format = "date-time"
	return s
}

func nullableString() *openapi3.Schema {
	s := schemaOf(openapi3.TypeString)
	s.Nullable = true
	return s
}

func jsonResponse(desc string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &desc,
		Content:     openapi3.NewContentWithJSONSchemaRef(schema),
	}}
}

func operation(id, summary string, params openapi3.Parameters, body *openapi3.RequestBodyRef, responses map[string]*openapi3.ResponseRef) *openapi3.Operation {
	op := &openapi3.Operation{
		OperationID: id,
		Summary:     summary,
		Parameters:  params,
		RequestBody: body,
		Responses:   &openapi3.Responses{},
	}
	for code, resp := range responses {
		op.Responses.Set(code, resp)
	}
	return op
}

// OpenAPIDocument describes the order API mounted under /api.
func OpenAPIDocument() *openapi3.T {
	errorSchema := objectOf([]string{"error"}, map[string]*openapi3.Schema{
		"error": schemaOf(openapi3.TypeString),
	})
	orderProps := func() map[string]*openapi3.Schema {
		return map[string]*openapi3.Schema{
			"id":          int64Schema(),
			"description": schemaOf(openapi3.TypeString),
			"createdAt":   dateTimeSchema(),
		}
	}
	order := objectOf([]string{"id", "description", "createdAt"}, orderProps())

	summaryProps := orderProps()
	summaryProps["productCount"] = schemaOf(openapi3.TypeInteger)
	summary := objectOf([]string{"id", "description", "createdAt", "productCount"}, summaryProps)

	product := objectOf([]string{"id", "name"}, map[string]*openapi3.Schema{
		"id":          int64Schema(),
		"name":        schemaOf(openapi3.TypeString),
		"description": nullableString(),
	})
	detail := objectOf([]string{"id", "description", "createdAt", "products"}, orderProps())
	detail.Value.Properties["products"] = arrayOf(product)

	descSchema := schemaOf(openapi3.TypeString)
	descSchema.MinLength = 1
	maxLen := uint64(100)
	descSchema.MaxLength = &maxLen
	input := objectOf([]string{"description"}, map[string]*openapi3.Schema{
		"description":      descSchema,
		"orderDescription": schemaOf(openapi3.TypeString),
	})
	input.Value.Properties["productIds"] = arrayOf(&openapi3.SchemaRef{Value: int64Schema()})
	body := &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
		Required: true,
		Content:  openapi3.NewContentWithJSONSchemaRef(input),
	}}

	idParam := openapi3.Parameters{{Value: openapi3.NewPathParameter("id").WithSchema(int64Schema())}}
	deleted := objectOf([]string{"message"}, map[string]*openapi3.Schema{
		"message": schemaOf(openapi3.TypeString),
		"id":      int64Schema(),
	})
	errs := func(codes ...string) map[string]*openapi3.ResponseRef {
		m := make(map[string]*openapi3.ResponseRef, len(codes))
		for _, c := range codes {
			m[c] = jsonResponse("error", errorSchema)
		}
		return m
	}
	with := func(m map[string]*openapi3.ResponseRef, code string, r *openapi3.ResponseRef) map[string]*openapi3.ResponseRef {
		m[code] = r
		return m
	}

	paths := &openapi3.Paths{}
	paths.Set("/api/order", &openapi3.PathItem{
		Get: operation("listOrders", "List orders, newest first", nil, nil,
			with(errs("500", "503"), "200", jsonResponse("order summaries", arrayOf(summary)))),
	})
	paths.Set("/api/order/{id}", &openapi3.PathItem{
		Get: operation("getOrder", "Get an order with its products", idParam, nil,
			with(errs("400", "404", "500", "503"), "200", jsonResponse("order detail", detail))),
	})
	paths.Set("/api/orders", &openapi3.PathItem{
		Post: operation("createOrder", "Create an order", nil, body,
			with(errs("400", "500", "503"), "201", jsonResponse("created order", order))),
	})
	paths.Set("/api/orders/{id}", &openapi3.PathItem{
		Put: operation("updateOrder", "Replace description and product set", idParam, body,
			with(errs("400", "404", "500", "503"), "200", jsonResponse("updated order", order))),
		Delete: operation("deleteOrder", "Delete an order", idParam, nil,
			with(errs("400", "404", "500", "503"), "200", jsonResponse("deleted", deleted))),
	})
	paths.Set("/api/products", &openapi3.PathItem{
		Get: operation("listProducts", "List the product catalog", nil, nil,
			with(errs("500", "503"), "200", jsonResponse("products", arrayOf(product)))),
	})
	paths.Set("/api/health", &openapi3.PathItem{
		Get: operation("health", "Liveness", nil, nil, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("ok", objectOf([]string{"status", "timestamp"}, map[string]*openapi3.Schema{
				"status":    schemaOf(openapi3.TypeString),
				"timestamp": dateTimeSchema(),
			})),
		}),
	})

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: "Order catalog API", Version: "1.0.0"},
		Paths:   paths,
	}
}

// RegisterMeta mounts /health and /openapi.json.
func RegisterMeta(r chi.Router) {
	doc := OpenAPIDocument()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UTC()})
	})
	r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, doc)
	})
}
