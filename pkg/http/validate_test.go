package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type pauseRequest struct {
	Reason string `json:"reason" validate:"required,max=10"`
	Limit  int    `query:"limit" default:"20" validate:"gte=1,lte=50"`
}

func bindCtx(target, body string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestBindRequestAppliesDefaults(t *testing.T) {
	req := &pauseRequest{}
	if errs := BindRequest(bindCtx("/pause", `{"reason":"news"}`), req); errs != nil {
		t.Fatalf("errors %+v", errs)
	}
	if req.Reason != "news" || req.Limit != 20 {
		t.Fatalf("request %+v", req)
	}
}

func TestBindRequestReportsWireNames(t *testing.T) {
	errs := BindRequest(bindCtx("/pause?limit=99", `{"reason":"a very long reason"}`), &pauseRequest{})
	if len(errs) != 2 {
		t.Fatalf("errors %+v", errs)
	}
	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	if e := byField["reason"]; e.Code != "ERR_MAX" || e.Message != "reason must be at most 10 characters" {
		t.Fatalf("reason error %+v", e)
	}
	if e := byField["limit"]; e.Code != "ERR_LTE" || e.Params["max"] != "50" {
		t.Fatalf("limit error %+v", e)
	}
}

func TestBindRequestMalformedBody(t *testing.T) {
	errs := BindRequest(bindCtx("/pause", `{"reason":`), &pauseRequest{})
	if len(errs) != 1 || errs[0].Code != "ERR_MALFORMED" {
		t.Fatalf("errors %+v", errs)
	}
}
