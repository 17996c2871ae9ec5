package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type sampleRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"25" validate:"gte=1,lte=100"`
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/", `{"symbol":"BTCUSDT"}`)
	req := &sampleRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if req.Limit != 25 {
		t.Fatalf("limit = %d, want default 25", req.Limit)
	}
}

func TestReadAndValidateRequestUsesJSONNames(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/", `{"limit":500}`)
	verr := ReadAndValidateRequest(c, &sampleRequest{})
	errs, ok := verr.([]ValidationError)
	if !ok || len(errs) != 2 {
		t.Fatalf("got %#v, want two validation errors", verr)
	}
	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Code
	}
	if fields["symbol"] != "ERR_REQUIRED" || fields["limit"] != "ERR_LTE" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestAppErrorResponseWritesStatus(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", "")
	if err := AppErrorResponse(c, ConflictError("run in progress")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != http.StatusConflict || body.Message != http.StatusText(http.StatusConflict) {
		t.Fatalf("envelope = %+v", body)
	}

	c, rec = newContext(http.MethodGet, "/", "")
	_ = AppErrorResponse(c, http.ErrHandlerTimeout)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("plain error status = %d, want 500", rec.Code)
	}
}

func TestServerMountsHealthz(t *testing.T) {
	s := NewServer(nil, WithMetricsEndpoint(false))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics should be unmounted, got %d", rec.Code)
	}
}

func TestClientDecodesEnvelope(t *testing.T) {
	e := echo.New()
	e.POST("/api/echo", func(c echo.Context) error {
		if c.QueryParam("mode") == "fail" {
			return AppErrorResponse(c, UnprocessableError("not enough signals"))
		}
		var in map[string]int
		if err := c.Bind(&in); err != nil {
			return err
		}
		return SuccessResponse(c, map[string]int{"n": in["n"] + 1})
	})
	ts := httptest.NewServer(e)
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL + "/"))
	var out map[string]int
	err := client.SendAndParseData(context.Background(), &RequestOptions{
		Method: http.MethodPost,
		URL:    "/api/echo",
		Body:   map[string]int{"n": 41},
	}, &out)
	if err != nil || out["n"] != 42 {
		t.Fatalf("got %v, %v", out, err)
	}

	err = client.SendAndParseData(context.Background(), &RequestOptions{
		Method:      http.MethodPost,
		URL:         "api/echo",
		QueryParams: map[string][]string{"mode": {"fail"}},
		Body:        map[string]int{},
	}, &out)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusUnprocessableEntity || len(se.Errors) != 1 || se.Errors[0].Code != "ERR_UNPROCESSABLE" {
		t.Fatalf("status error = %+v", se)
	}
}

func TestAppErrorResponseRetryAfter(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/", "")
	_ = AppErrorResponse(c, TooManyRequestsError("slow down").WithRetryAfter(1500*time.Millisecond))
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("status=%d retry-after=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
}
