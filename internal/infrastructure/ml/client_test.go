package ml

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/forecast"
)

func TestClientForecast(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization header = %q", got)
		}
		var req forecastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Region != "ODISHA" || req.Volume != 120 || req.Horizon != 3 {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(forecastResponse{Values: []float64{130, 140, 150}, Accuracy: 93.2})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 3, time.Second)
	p, err := client.Forecast(context.Background(), "ODISHA", 120)
	if err != nil {
		t.Fatalf("Forecast returned error: %v", err)
	}
	if len(p.Values) != 3 || p.Values[2] != 150 {
		t.Fatalf("unexpected values %v", p.Values)
	}
	if p.Trend != domain.TrendUpward {
		t.Fatalf("expected derived trend UPWARD, got %q", p.Trend)
	}
	if p.Source != forecast.SourceHTTP {
		t.Fatalf("expected source %q, got %q", forecast.SourceHTTP, p.Source)
	}
}

func TestClientForecastFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req forecastRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Region == "EMPTY" {
			_, _ = w.Write([]byte(`{"values":[]}`))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0, time.Second)

	if _, err := client.Forecast(context.Background(), "GOA", 1); !errors.Is(err, forecast.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on 500, got %v", err)
	}
	if _, err := client.Forecast(context.Background(), "EMPTY", 1); !errors.Is(err, forecast.ErrNoProjection) {
		t.Fatalf("expected ErrNoProjection on empty values, got %v", err)
	}
	if _, err := NewClient("", "", 0, 0).Forecast(context.Background(), "GOA", 1); !errors.Is(err, forecast.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable without endpoint, got %v", err)
	}
}

func TestClientFeedsChainFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	chain := forecast.NewChain(forecast.NewFallback(nil), nil, NewClient(srv.URL, "", 3, time.Second))
	p, err := chain.Forecast(context.Background(), "GOA", 100)
	if err != nil {
		t.Fatalf("chain returned error: %v", err)
	}
	if p.Source != forecast.SourceFallback || p.FailureReason == "" {
		t.Fatalf("expected fallback with reason, got %+v", p)
	}
}
