package stockimport_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, stockimport.ExitSuccess},
		{"unknown flag", errors.New("unknown flag --foo"), stockimport.ExitUsageError},
		{"unknown shorthand flag", errors.New("unknown shorthand flag: 'x'"), stockimport.ExitUsageError},
		{"accepts args", errors.New("accepts 1 arg(s), received 0"), stockimport.ExitUsageError},
		{"required flag", errors.New("required flag \"table\" not set"), stockimport.ExitUsageError},
		{"invalid argument", errors.New("invalid argument \"abc\" for \"--chunk-size\""), stockimport.ExitUsageError},
		{"general error", errors.New("something went wrong"), stockimport.ExitGeneralError},
		{"connection failed", stockimport.ErrConnectionFailed, stockimport.ExitConnectionError},
		{"wrapped connection failed", fmt.Errorf("chunk 3: %w", stockimport.ErrConnectionFailed), stockimport.ExitConnectionError},
		{"connection refused text", errors.New("dial tcp: connection refused"), stockimport.ExitConnectionError},
		{"invalid config", fmt.Errorf("chunk size: %w", stockimport.ErrInvalidConfig), stockimport.ExitConfigError},
		{"unsupported auth", stockimport.ErrUnsupportedAuthMethod, stockimport.ExitConfigError},
		{"source unavailable", fmt.Errorf("open prices.csv: %w", stockimport.ErrSourceUnavailable), stockimport.ExitSourceUnavailable},
		{"partial failure", fmt.Errorf("2 of 3 chunks: %w", stockimport.ErrPartialFailure), stockimport.ExitPartialFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stockimport.ExitCodeForError(tt.err); got != tt.want {
				t.Errorf("ExitCodeForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
