package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	openapiOnce sync.Once
	openapiDoc  *openapi3.T
	openapiErr  error
)

func loadOpenAPIDoc(t *testing.T) *openapi3.T {
	t.Helper()
	openapiOnce.Do(func() {
		loader := openapi3.NewLoader()
		loader.IsExternalRefsAllowed = true
		doc, err := loader.LoadFromFile("openapi.yaml")
		if err != nil {
			openapiErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			openapiErr = err
			return
		}
		openapiDoc = doc
	})
	if openapiErr != nil {
		t.Fatalf("openapi load failed: %v", openapiErr)
	}
	return openapiDoc
}

func forEachOperation(t *testing.T, doc *openapi3.T, fn func(method, path string, op *openapi3.Operation)) {
	t.Helper()
	for path, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil {
				continue
			}
			fn(method, path, op)
		}
	}
}

var pathParamRe = regexp.MustCompile(`\{([^}]+)\}`)

func samplePathValue(name string) string {
	switch name {
	case "name":
		return "smu"
	case "param":
		return "voltage"
	case "guid":
		return "00000000-0000-4000-8000-000000000000"
	}
	return "x"
}

func validateOpenAPIResponse(t *testing.T, doc *openapi3.T, req *http.Request, rec *httptest.ResponseRecorder, opts *openapi3filter.Options) {
	t.Helper()
	router, err := legacy.NewRouter(doc)
	require.NoError(t, err, "openapi router init")

	route, pathParams, err := router.FindRoute(req)
	require.NoError(t, err, "openapi route lookup for %s %s", req.Method, req.URL.Path)

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status:  rec.Code,
		Header:  rec.Header(),
		Options: opts,
	}
	input.SetBodyBytes(rec.Body.Bytes())

	require.NoError(t, openapi3filter.ValidateResponse(context.Background(), input), "openapi response validation")
}

func contractRequest(t *testing.T, ts *testServer, method, target, body string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return req, rec
}

// TestOpenAPIDocumentMatchesRouter walks every documented operation
// and checks the router actually mounts it.
func TestOpenAPIDocumentMatchesRouter(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	ts := newTestServer(t)

	mux, ok := ts.handler.(chi.Router)
	require.True(t, ok, "handler is the chi router")

	forEachOperation(t, doc, func(method, path string, op *openapi3.Operation) {
		assert.NotEmpty(t, op.OperationID, "operation %s %s needs an id", method, path)

		concrete := pathParamRe.ReplaceAllStringFunc(path, func(m string) string {
			return samplePathValue(pathParamRe.FindStringSubmatch(m)[1])
		})
		assert.True(t, mux.Match(chi.NewRouteContext(), method, concrete),
			"documented operation %s %s has no route", method, path)
	})
}

// TestContractResponses drives real requests through the handler and
// validates each response against the document.
func TestContractResponses(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	ts := newTestServer(t)
	completed, _ := seedRuns(t, ts.store)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		opts       *openapi3filter.Options
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK, nil},
		{"readiness", http.MethodGet, "/readyz", "", http.StatusOK, nil},
		{"instruments", http.MethodGet, "/api/v1/instruments", "", http.StatusOK, nil},
		{"parameter_get", http.MethodGet, "/api/v1/instruments/smu/parameters/voltage", "", http.StatusOK, nil},
		{"parameter_put", http.MethodPut, "/api/v1/instruments/smu/parameters/voltage", `{"value": 0.5}`, http.StatusOK, nil},
		{"parameter_put_rejected", http.MethodPut, "/api/v1/instruments/smu/parameters/voltage", `{"value": 12}`, http.StatusUnprocessableEntity, nil},
		{"unknown_instrument", http.MethodGet, "/api/v1/instruments/magnet/parameters/field", "", http.StatusNotFound, nil},
		{"runs", http.MethodGet, "/api/v1/runs", "", http.StatusOK, nil},
		{"run", http.MethodGet, "/api/v1/runs/" + completed.GUID, "", http.StatusOK, nil},
		{"export_json", http.MethodGet, "/api/v1/runs/" + completed.GUID + "/export?format=json", "", http.StatusOK, nil},
		{"export_csv", http.MethodGet, "/api/v1/runs/" + completed.GUID + "/export", "", http.StatusOK,
			&openapi3filter.Options{ExcludeResponseBody: true}},
		{"monitor", http.MethodGet, "/api/v1/monitor", "", http.StatusOK, nil},
		{"monitor_status", http.MethodGet, "/api/v1/monitor/status", "", http.StatusOK, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := contractRequest(t, ts, tt.method, tt.target, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, "body: %s", rec.Body.String())
			validateOpenAPIResponse(t, doc, req, rec, tt.opts)
		})
	}
}
