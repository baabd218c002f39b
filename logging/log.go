package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type prefixFormatter struct {
	prefix    string
	formatter logrus.Formatter
}

// Init options for logging.
type Options struct {

	// Prefix for application log entries. Primarily used to be
	// able to select between access log and application log
	// entries.
	ApplicationLogPrefix string

	// Output for the application log entries, when nil,
	// os.Stderr is used.
	ApplicationLogOutput io.Writer

	// Minimum level of the application log entries, e.g. "debug"
	// or "warn". When empty, the logrus default is kept.
	ApplicationLogLevel string

	// When set, the application log is printed in JSON format.
	ApplicationLogJSONEnabled bool

	// Output for the access log entries, when nil, os.Stderr is
	// used.
	AccessLogOutput io.Writer

	// When set, no access log is printed.
	AccessLogDisabled bool

	// When set, log in JSON format is used
	AccessLogJSONEnabled bool
}

func (f *prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	b, err := f.formatter.Format(e)
	if err != nil {
		return nil, err
	}

	return append([]byte(f.prefix), b...), nil
}

func initApplicationLog(prefix string, output io.Writer, jsonEnabled bool) {
	var formatter logrus.Formatter = &logrus.TextFormatter{}
	if jsonEnabled {
		formatter = &logrus.JSONFormatter{}
	}

	if prefix != "" {
		formatter = &prefixFormatter{prefix, formatter}
	}

	logrus.SetFormatter(formatter)
	if output != nil {
		logrus.SetOutput(output)
	}
}

func initAccessLog(output io.Writer, accessLogJSONEnabled bool) {
	l := logrus.New()
	if accessLogJSONEnabled {
		l.Formatter = &logrus.JSONFormatter{TimestampFormat: dateFormat, DisableTimestamp: true}
	} else {
		l.Formatter = &accessLogFormatter{accessLogFormat}
	}
	l.Out = output
	l.Level = logrus.InfoLevel
	accessLog = l
}

// Init initializes logging. It fails only when the application log
// level cannot be parsed.
func Init(o Options) error {
	if o.ApplicationLogLevel != "" {
		level, err := logrus.ParseLevel(o.ApplicationLogLevel)
		if err != nil {
			return err
		}

		logrus.SetLevel(level)
	}

	if o.ApplicationLogPrefix != "" || o.ApplicationLogOutput != nil || o.ApplicationLogJSONEnabled {
		initApplicationLog(o.ApplicationLogPrefix, o.ApplicationLogOutput, o.ApplicationLogJSONEnabled)
	}

	if o.AccessLogDisabled {
		accessLog = nil
		return nil
	}

	if o.AccessLogOutput == nil {
		o.AccessLogOutput = os.Stderr
	}

	initAccessLog(o.AccessLogOutput, o.AccessLogJSONEnabled)
	return nil
}
