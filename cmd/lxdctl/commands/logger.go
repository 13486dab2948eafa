package commands

import (
	"errors"
	"io"

	"code.cloudfoundry.org/lager/v3"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// lagerLogger adapts a lager.Logger to lxd.Logger.
type lagerLogger struct {
	logger lager.Logger
}

func newLagerLogger(writer io.Writer, debug bool) *lagerLogger {
	level := lager.INFO
	if debug {
		level = lager.DEBUG
	}

	logger := lager.NewLogger("lxdctl")
	logger.RegisterSink(lager.NewWriterSink(writer, level))

	return &lagerLogger{logger: logger}
}

var _ lxd.Logger = (*lagerLogger)(nil)

func (l *lagerLogger) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug(msg, lager.Data(fields))
}

func (l *lagerLogger) Info(msg string, fields map[string]interface{}) {
	l.logger.Info(msg, lager.Data(fields))
}

// Warn is logged at info level; lager has no warning level.
func (l *lagerLogger) Warn(msg string, fields map[string]interface{}) {
	data := lager.Data{"level": "warn"}
	for key, value := range fields {
		data[key] = value
	}

	l.logger.Info(msg, data)
}

func (l *lagerLogger) Error(msg string, fields map[string]interface{}) {
	var err error

	switch cause := fields["error"].(type) {
	case error:
		err = cause
	case string:
		err = errors.New(cause)
	default:
		err = errors.New(msg)
	}

	data := lager.Data{}
	for key, value := range fields {
		if key != "error" {
			data[key] = value
		}
	}

	l.logger.Error(msg, err, data)
}
