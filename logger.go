package flowscribe

import "context"

type Logger interface {
	// Debug is used for expected-but-noteworthy events such as soft failures
	// and skipped actions.
	Debug(ctx context.Context, msg string, meta MKV)
	// Error is used when writing errors to the logs.
	Error(ctx context.Context, err error)
}

// MKV is a multiple key value bag for the logger to format into its output.
type MKV map[string]string

// NoopLogger is the default logger when none is configured.
type NoopLogger struct{}

func (NoopLogger) Debug(ctx context.Context, msg string, meta MKV) {}

func (NoopLogger) Error(ctx context.Context, err error) {}

var _ Logger = NoopLogger{}
