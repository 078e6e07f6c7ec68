package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-assistant/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	turnsStarted, _ = meter.Int64Counter("ema.turns.started",
		metric.WithDescription("Number of turns opened on the remote assistant"))
	turnsFinished, _ = meter.Int64Counter("ema.turns.finished",
		metric.WithDescription("Number of turns that reached a terminal state"))
)
