package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// TestScoreTracing tests that the score handler creates a child span with
// the overall score attached
func TestScoreTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	handler, _ := setupTestHandler(t)

	reqBody := `{"original":"cat","optimized":"Create a high-quality, photorealistic image of a beautiful cat, centered in the frame","media_type":"image"}`
	req := httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")

	ctx, span := tp.Tracer("test").Start(context.Background(), "test-request")
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.handleScore(w, req)
	span.End()

	tp.ForceFlush(context.Background())
	spans := exporter.GetSpans()

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var scoreSpan *tracetest.SpanStub
	for i := range spans {
		if spans[i].Name == "analyzer.score" {
			scoreSpan = &spans[i]
			break
		}
	}
	if scoreSpan == nil {
		t.Fatalf("analyzer.score span not found, available spans: %v", getSpanNames(spans))
	}

	if scoreSpan.Parent.SpanID() != span.SpanContext().SpanID() {
		t.Error("analyzer.score span is not a child of the request span")
	}

	hasOverall := false
	for _, attr := range scoreSpan.Attributes {
		if string(attr.Key) == "score.overall" {
			hasOverall = true
			if attr.Value.AsInt64() != 75 {
				t.Errorf("Expected score.overall 75, got %d", attr.Value.AsInt64())
			}
		}
	}
	if !hasOverall {
		t.Error("score.overall attribute not found on analyzer.score span")
	}
}

// TestQuickOptimizeTracing tests that optimizer spans record cache hits
func TestQuickOptimizeTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	handler, _ := setupTestHandler(t)
	body := `{"original_prompt":"create image of cat","target_model":"DALL-E 3","media_type":"image"}`

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/optimize/quick", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.handleQuickOptimize(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
	}

	tp.ForceFlush(context.Background())

	var hits []bool
	for _, s := range exporter.GetSpans() {
		if s.Name != "optimizer.QuickOptimize" {
			continue
		}
		for _, attr := range s.Attributes {
			if string(attr.Key) == "cache.hit" {
				hits = append(hits, attr.Value.AsBool())
			}
		}
	}

	if len(hits) != 2 || hits[0] || !hits[1] {
		t.Errorf("Expected cache.hit [false true], got %v", hits)
	}
}

// getSpanNames returns a list of span names for debugging
func getSpanNames(spans tracetest.SpanStubs) []string {
	names := make([]string, len(spans))
	for i, span := range spans {
		names[i] = span.Name
	}
	return names
}
