package obs

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	loggerMu sync.Mutex
	logger   zerolog.Logger
	ready    bool
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
}

// Logger returns the shared structured logger used across the services.
func Logger() *zerolog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if !ready {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		ready = true
	}
	return &logger
}

// SetOutput redirects the shared logger. Intended for tests.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = zerolog.New(w).With().Timestamp().Logger()
	ready = true
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(fields map[string]any) {
	Logger().Info().Fields(fields).Msg("request_complete")
}
