package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	ID    string  `param:"id" validate:"required"`
	Price float64 `json:"price" validate:"gt=0"`
	Limit int     `query:"limit" json:"limit" default:"10" validate:"min=1,max=100"`
}

type testHandler struct{}

func (testHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/items/:id", func(c echo.Context) error {
		req := &echoRequest{}
		if verr := ReadAndValidateRequest(c, req); verr != nil {
			return BadRequestResponse(c, verr)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("ERR_PRODUCT_NOT_FOUND", "product not found"))
	})
	e.GET("/boom", func(c echo.Context) error {
		return AppErrorResponse(c, errors.New("db down"))
	})
	e.GET("/panic", func(c echo.Context) error {
		panic("kaboom")
	})
}

func newTestServer() *Server {
	return NewServer(nil, prometheus.NewRegistry(), []Handler{testHandler{}})
}

func do(s *Server, method, target, body string) (*httptest.ResponseRecorder, APIResponse) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	var out APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestBindDefaultsAndValidation(t *testing.T) {
	s := newTestServer()

	rec, out := do(s, http.MethodPost, "/items/abc", `{"price":12.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := out.Data.(map[string]any)
	assert.Equal(t, 12.5, data["price"])
	assert.EqualValues(t, 10, data["limit"])

	rec, out = do(s, http.MethodPost, "/items/abc", `{"price":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, out.Status)
	errs := out.Data.([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "price", first["field"])
	assert.Equal(t, "ERR_GT", first["code"])

	rec, _ = do(s, http.MethodPost, "/items/abc", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAppErrorStatus(t *testing.T) {
	s := newTestServer()

	rec, out := do(s, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, out.Status)
	assert.Contains(t, rec.Body.String(), "ERR_PRODUCT_NOT_FOUND")

	rec, _ = do(s, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPanicAndUnknownRoute(t *testing.T) {
	s := newTestServer()

	rec, out := do(s, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, out.Status)

	rec, out = do(s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, out.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer()
	do(s, http.MethodGet, "/missing", "")

	rec, _ := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "priceopt_http_requests_total")
}
