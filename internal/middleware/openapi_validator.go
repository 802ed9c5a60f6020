package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	Enabled  bool
	SpecPath string
	// ValidateResponses logs responses that break the contract. It buffers
	// every response body, so keep it off outside development.
	ValidateResponses bool
	// Prefixes limits validation to the JSON surface. Pages and the
	// websocket upgrade are never described by the document.
	Prefixes []string
}

// DefaultOpenAPIValidatorConfig validates the /api surface against specPath
func DefaultOpenAPIValidatorConfig(enabled bool, specPath string) OpenAPIValidatorConfig {
	return OpenAPIValidatorConfig{
		Enabled:  enabled,
		SpecPath: specPath,
		Prefixes: []string{"/api/"},
	}
}

// LoadOpenAPIRouter loads and validates the document at path and builds a router over it
func LoadOpenAPIRouter(path string) (*openapi3.T, routers.Router, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, nil, fmt.Errorf("invalid openapi document: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("build openapi router: %w", err)
	}
	return doc, router, nil
}

// OpenAPIValidator rejects /api requests that do not match the published
// contract with 400. A disabled config yields a pass-through middleware; a
// broken document is reported to the caller.
func OpenAPIValidator(cfg OpenAPIValidatorConfig) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		slog.Info("OpenAPI validation disabled")
		return func(next http.Handler) http.Handler { return next }, nil
	}

	_, router, err := LoadOpenAPIRouter(cfg.SpecPath)
	if err != nil {
		return nil, err
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_responses", cfg.ValidateResponses),
		slog.String("spec_path", cfg.SpecPath))

	options := &openapi3filter.Options{
		// Bearer and cookie credentials are checked by the gatekeeper and upstream
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !inValidationScope(r.URL.Path, cfg.Prefixes) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				slog.Warn("request path not found in OpenAPI document",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				writeJSONError(w, http.StatusNotFound, "Not Found")
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				slog.Warn("request validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				writeJSONError(w, http.StatusBadRequest, "Request does not match the API contract")
				return
			}

			if !cfg.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			out := &openapi3filter.ResponseValidationInput{
				RequestValidationInput: input,
				Status:                 rec.statusCode,
				Header:                 rec.Header(),
				Body:                   io.NopCloser(bytes.NewReader(rec.body.Bytes())),
				Options:                options,
			}
			// The response is already on the wire; only report the drift.
			if err := openapi3filter.ValidateResponse(r.Context(), out); err != nil {
				slog.Warn("response validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", rec.statusCode),
					slog.String("error", err.Error()))
			}
		})
	}, nil
}

func inValidationScope(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
