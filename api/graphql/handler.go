package graphql

import (
	"context"
	"net/http"

	"github.com/graphql-go/graphql"
	graphqlhandler "github.com/graphql-go/handler"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/logger"
)

// Handler serves the market schema over HTTP and exposes the playground on GET
type Handler struct {
	schema *Schema
	http   *graphqlhandler.Handler
	logger *zap.Logger
}

// NewHandler builds the schema from deps and wraps it in an HTTP handler
func NewHandler(deps Deps) (*Handler, error) {
	schema, err := NewSchema(deps)
	if err != nil {
		return nil, err
	}

	h := &Handler{schema: schema, logger: schema.logger}
	h.http = graphqlhandler.New(&graphqlhandler.Config{
		Schema:           &schema.schema,
		Pretty:           true,
		Playground:       true,
		ResultCallbackFn: h.logResult,
	})
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithLogger(r.Context(), h.logger)
	h.http.ServeHTTP(w, r.WithContext(ctx))
}

func (h *Handler) logResult(ctx context.Context, params *graphql.Params, result *graphql.Result, _ []byte) {
	if !result.HasErrors() {
		return
	}
	msgs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		msgs = append(msgs, e.Message)
	}
	h.logger.Debug("graphql request returned errors",
		zap.String("operation", params.OperationName),
		zap.Strings("errors", msgs))
}

// ExecuteQuery runs a query against the schema without going through HTTP
func (h *Handler) ExecuteQuery(ctx context.Context, query string, variables map[string]interface{}) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         h.schema.schema,
		RequestString:  query,
		VariableValues: variables,
		Context:        logger.WithLogger(ctx, h.logger),
	})
}
