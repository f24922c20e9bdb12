package observability

import "testing"

func TestServiceName(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	if got := ServiceName(); got != "calculator-api" {
		t.Fatalf("expected default service name %q, got %q", "calculator-api", got)
	}

	t.Setenv("OTEL_SERVICE_NAME", "calc-edge")
	if got := ServiceName(); got != "calc-edge" {
		t.Fatalf("expected service name %q, got %q", "calc-edge", got)
	}
}
