package history

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-assistant/core/history"

var logger = otelslog.NewLogger(scopeName)
