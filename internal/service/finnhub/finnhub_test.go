package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStreamSourceFoldsTradesIntoBars(t *testing.T) {
	s := NewStreamSource("k", "wss://example", []string{"AAPL", "MSFT"}, time.Second, time.Second, nil)

	s.handleFrame([]byte(`{"type":"trade","data":[{"s":"AAPL","p":100,"v":5,"t":1},{"s":"AAPL","p":102,"v":1,"t":2},{"s":"AAPL","p":99,"v":2,"t":3}]}`))
	s.handleFrame([]byte(`{"type":"ping"}`))

	got, _ := s.FetchQuotes(context.Background(), []string{"AAPL", "MSFT"})
	if _, ok := got["MSFT"]; ok {
		t.Fatalf("MSFT had no prints and should be absent")
	}
	q := got["AAPL"]
	if q.Open != 100 || q.High != 102 || q.Low != 99 || q.Close != 99 || q.Volume != 8 {
		t.Fatalf("bar=%+v", q)
	}

	// the next bar opens at the previous close
	s.Apply("AAPL", 101, 1)
	got, _ = s.FetchQuotes(context.Background(), []string{"AAPL"})
	q = got["AAPL"]
	if q.Open != 99 || q.Low != 99 || q.High != 101 || q.Close != 101 {
		t.Fatalf("second bar=%+v", q)
	}

	got, _ = s.FetchQuotes(context.Background(), []string{"AAPL"})
	if len(got) != 0 {
		t.Fatalf("no prints since last fetch, got %+v", got)
	}
}

func TestRESTSourceQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" || r.URL.Query().Get("token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			_, _ = w.Write([]byte(`{"c":101.5,"h":102,"l":100,"o":100.5,"pc":100,"t":1700000000}`))
		default:
			_, _ = w.Write([]byte(`{"c":0,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
		}
	}))
	defer srv.Close()

	s := NewRESTSource(srv.URL, "secret", time.Second)
	got, err := s.FetchQuotes(context.Background(), []string{"AAPL", "NOPE"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got["AAPL"].Close != 101.5 || got["AAPL"].High != 102 {
		t.Fatalf("got %+v", got)
	}

	bad := NewRESTSource(srv.URL, "wrong", time.Second)
	if _, err := bad.FetchQuotes(context.Background(), []string{"AAPL"}); err == nil {
		t.Fatalf("expected error on unauthorized")
	}
}
