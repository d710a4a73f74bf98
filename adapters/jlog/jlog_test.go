package jlog_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/log"
	"github.com/stretchr/testify/require"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/adapters/jlog"
)

func TestDebug(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	jLogger := log.NewCmdLogger(buf, true)
	log.SetLoggerForTesting(t, jLogger)

	logger := jlog.New()
	logger.Debug(context.Background(), "step dropped", flowscribe.MKV{"reason": "paused"})

	require.Contains(t, buf.String(), "step dropped")
	require.Contains(t, buf.String(), "reason=paused")
}

func TestError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	jLogger := log.NewCmdLogger(buf, true)
	log.SetLoggerForTesting(t, jLogger)

	logger := jlog.New()
	logger.Error(context.Background(), errors.New("screenshot capture failed"))

	require.Contains(t, buf.String(), "screenshot capture failed")
}
