package portaudio

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/onyxvoice/onyx-core/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)
