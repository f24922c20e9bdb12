package main

import (
	"context"
	"fmt"

	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/observability"
)

// initMetrics starts the OTLP meter provider and then creates the calculator
// instruments against it.
func initMetrics(ctx context.Context) (func(context.Context) error, error) {
	shutdown, err := observability.InitMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("init meter provider: %w", err)
	}

	if err := calculator.InitMetrics(); err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("init calculator metrics: %w", err)
	}

	return shutdown, nil
}
