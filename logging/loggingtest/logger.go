// Package loggingtest provides a logging.Logger that records the entries
// for assertions in tests.
package loggingtest

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/passeplat/passeplat/logging"
)

type logSubscription struct {
	exp      string
	n        int
	response chan<- struct{}
}

type countRequest struct {
	exp      string
	response chan<- int
}

type logWatch struct {
	entries []string
	reqs    []*logSubscription
}

type TestLogger struct {
	save   chan string
	notify chan<- logSubscription
	count  chan<- countRequest
	clear  chan struct{}
	quit   chan<- struct{}
	fields string
}

var ErrWaitTimeout = errors.New("timeout")

func (lw *logWatch) save(e string) {
	lw.entries = append(lw.entries, e)
	for i := len(lw.reqs) - 1; i >= 0; i-- {
		req := lw.reqs[i]
		if strings.Contains(e, req.exp) {
			req.n--
			if req.n <= 0 {
				close(req.response)
				lw.reqs = append(lw.reqs[:i], lw.reqs[i+1:]...)
			}
		}
	}
}

func (lw *logWatch) notify(req logSubscription) {
	for i := len(lw.entries) - 1; i >= 0; i-- {
		if strings.Contains(lw.entries[i], req.exp) {
			req.n--
			if req.n == 0 {
				break
			}
		}
	}

	if req.n <= 0 {
		close(req.response)
	} else {
		lw.reqs = append(lw.reqs, &req)
	}
}

func (lw *logWatch) count(exp string) int {
	var n int
	for _, e := range lw.entries {
		if strings.Contains(e, exp) {
			n++
		}
	}

	return n
}

func (lw *logWatch) clear() {
	lw.entries = nil
	lw.reqs = nil
}

func New() *TestLogger {
	lw := &logWatch{}
	save := make(chan string)
	notify := make(chan logSubscription)
	count := make(chan countRequest)
	clear := make(chan struct{})
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case e := <-save:
				lw.save(e)
			case req := <-notify:
				lw.notify(req)
			case req := <-count:
				req.response <- lw.count(req.exp)
			case <-clear:
				lw.clear()
			case <-quit:
				return
			}
		}
	}()

	return &TestLogger{save: save, notify: notify, count: count, clear: clear, quit: quit}
}

func (tl *TestLogger) logf(f string, a ...interface{}) {
	tl.log(fmt.Sprintf(f, a...))
}

func (tl *TestLogger) log(a ...interface{}) {
	e := fmt.Sprint(a...)
	if tl.fields != "" {
		e = tl.fields + " " + e
	}

	log.Println(e)
	tl.save <- e
}

func (tl *TestLogger) WaitForN(exp string, n int, to time.Duration) error {
	found := make(chan struct{}, 1)
	tl.notify <- logSubscription{exp, n, found}

	select {
	case <-found:
		return nil
	case <-time.After(to):
		return ErrWaitTimeout
	}
}

func (tl *TestLogger) WaitFor(exp string, to time.Duration) error {
	return tl.WaitForN(exp, 1, to)
}

// Count returns the number of recorded entries containing exp.
func (tl *TestLogger) Count(exp string) int {
	rsp := make(chan int, 1)
	tl.count <- countRequest{exp, rsp}
	return <-rsp
}

func (tl *TestLogger) Reset() {
	tl.clear <- struct{}{}
}

func (tl *TestLogger) Close() {
	close(tl.quit)
}

func (tl *TestLogger) Error(a ...interface{})            { tl.log(a...) }
func (tl *TestLogger) Errorf(f string, a ...interface{}) { tl.logf(f, a...) }
func (tl *TestLogger) Warn(a ...interface{})             { tl.log(a...) }
func (tl *TestLogger) Warnf(f string, a ...interface{})  { tl.logf(f, a...) }
func (tl *TestLogger) Info(a ...interface{})             { tl.log(a...) }
func (tl *TestLogger) Infof(f string, a ...interface{})  { tl.logf(f, a...) }
func (tl *TestLogger) Debug(a ...interface{})            { tl.log(a...) }
func (tl *TestLogger) Debugf(f string, a ...interface{}) { tl.logf(f, a...) }

// WithFields returns a logger sharing the recorded entries, prefixing
// each entry with the fields as sorted key=value pairs.
func (tl *TestLogger) WithFields(fields map[string]interface{}) logging.Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)+1)
	if tl.fields != "" {
		pairs = append(pairs, tl.fields)
	}

	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, fields[k]))
	}

	c := *tl
	c.fields = strings.Join(pairs, " ")
	return &c
}
