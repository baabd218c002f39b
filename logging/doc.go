/*
Package logging implements application log instrumentation and the
gateway access log.

Application Log

The application log uses the logrus package:

https://github.com/sirupsen/logrus

To send messages to the application log, import logrus and use its
methods. Example:

    import log "github.com/sirupsen/logrus"

    func doSomething() {
        log.Errorf("nothing to do")
    }

During startup initialization, it is possible to redirect the log output
from the default /dev/stderr to another file, to set the minimum level
and to set a common prefix for each log entry. Setting the prefix may be
a good idea when the access log is enabled and its output is the same as
the one of the application log, to make it easier to split the output for
diagnostics.

Components that accept an injectable logger take a Logger. DefaultLog
forwards to the logrus standard logger, loggingtest.TestLogger records
the entries for assertions.

Access Log

The access log prints HTTP access information in the Apache combined
access log format, extended with the duration in milliseconds, the
requested host, the transaction id, the web service id and the user id.
To output entries, use the LogAccess function. The proxy wraps the
response writer with a LoggingWriter to capture the status code and the
number of bytes sent to the client.

The access log can be disabled, or switched to JSON output, with the
Options passed to Init.
*/
package logging
