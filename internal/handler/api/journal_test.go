package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	xhttp "TickPilot/pkg/http"

	"github.com/labstack/echo/v4"
)

type fakeDeadLetters struct {
	n   int64
	err error
}

func (f fakeDeadLetters) DeadLetters(context.Context) (int64, error) { return f.n, f.err }

func TestJournalDeadLettersRoute(t *testing.T) {
	e := echo.New()
	xhttp.Handlers{
		NewEngineHandler(nil, &fakeEngine{}, nil, nil),
		NewJournalHandler(nil, fakeDeadLetters{n: 3}),
	}.RegisterRoutes(e.Group("/api"))

	rec, env := serve(t, e, http.MethodGet, "/api/journal/dead-letters", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d %s", rec.Code, rec.Body.String())
	}
	var body JournalHealth
	if err := json.Unmarshal(env.Data, &body); err != nil || body.DeadLetters != 3 {
		t.Fatalf("body %s err=%v", env.Data, err)
	}
	if rec, _ := serve(t, e, http.MethodGet, "/api/summary", ""); rec.Code != http.StatusOK {
		t.Fatalf("engine routes not mounted alongside: %d", rec.Code)
	}
}

func TestJournalDeadLettersQueueDown(t *testing.T) {
	e := echo.New()
	NewJournalHandler(nil, fakeDeadLetters{err: errors.New("redis down")}).RegisterRoutes(e.Group("/api"))

	rec, env := serve(t, e, http.MethodGet, "/api/journal/dead-letters", "")
	if rec.Code != http.StatusInternalServerError || env.Status != http.StatusInternalServerError {
		t.Fatalf("status %d/%d", rec.Code, env.Status)
	}
}
