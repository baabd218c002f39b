/*
Package ftpscheme implements the processor of the ftp destinations.

The file at the path of the destination URL is retrieved in passive
mode, and streamed to the initiator as the body of a 200 OK response.
The credentials are taken from the user info of the destination URL,
anonymous when missing. The transactions that fail to connect, to log
in or to transfer the file get the NOT_REACHABLE status, and the
successful ones the OK status.

The control and the data connections are released on every exit path.
*/
package ftpscheme

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/metrics"
	"github.com/passeplat/passeplat/scheme"
	"github.com/passeplat/passeplat/tasks"
)

const (
	Scheme = "ftp"

	DefaultPort    = "21"
	DefaultTimeout = 10 * time.Second

	anonymous          = "anonymous"
	defaultContentType = "application/octet-stream"
)

// Options of the processor.
type Options struct {

	// Timeout bounds the connection to the server.
	Timeout time.Duration

	// DisableEPSV forces the PASV command for the data connections.
	DisableEPSV bool

	Metrics metrics.Metrics
}

// Processor retrieves the files of ftp destinations.
type Processor struct {
	options Options
}

func New(o Options) *Processor {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Void
	}

	return &Processor{options: o}
}

func (p *Processor) Schemes() []string { return []string{Scheme} }

func address(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}

	return net.JoinHostPort(u.Hostname(), DefaultPort)
}

func credentials(u *url.URL) (string, string) {
	if u.User == nil || u.User.Username() == "" {
		return anonymous, anonymous
	}

	pass, _ := u.User.Password()
	return u.User.Username(), pass
}

func contentType(filePath string) string {
	if ct := mime.TypeByExtension(path.Ext(filePath)); ct != "" {
		return ct
	}

	return defaultContentType
}

func transition(tx *scheme.Transaction, s scheme.State) {
	if err := tx.Transition(s); err != nil {
		log.Debugf("transaction %s: %v", tx.Content.ID(), err)
	}
}

func (p *Processor) dial(ctx context.Context, u *url.URL) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(
		address(u),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(p.options.Timeout),
		ftp.DialWithDisabledEPSV(p.options.DisableEPSV),
	)

	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	user, pass := credentials(u)
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("failed to log in as %s: %w", user, err)
	}

	return conn, nil
}

func (p *Processor) Process(tx *scheme.Transaction) {
	start := time.Now()
	err := p.process(tx)
	p.options.Metrics.MeasureBackend(Scheme, start)
	if err != nil {
		p.options.Metrics.IncBackendReachFailures(Scheme)
		tx.Fail(err)
		return
	}

	tx.Complete()
}

func (p *Processor) process(tx *scheme.Transaction) error {
	c := tx.Content
	u := tx.Destination()
	transition(tx, scheme.Connecting)
	c.Timing.Mark(analyzable.Start)
	conn, err := p.dial(tx.Context(), u)
	if err != nil {
		return err
	}

	defer conn.Quit()
	stop := context.AfterFunc(tx.Context(), func() { conn.Quit() })
	defer stop()

	filePath := u.Path
	if filePath == "" {
		filePath = "/"
	}

	transition(tx, scheme.SendingRequest)
	size, sizeErr := conn.FileSize(filePath)
	rsp, err := conn.Retr(filePath)
	if err != nil {
		return fmt.Errorf("failed to retrieve %s: %w", filePath, err)
	}

	defer rsp.Close()
	c.Timing.Mark(analyzable.StartedReceiving)
	transition(tx, scheme.ReceivingBody)

	r := c.Response()
	r.SetStatusCode(200)
	r.Header.Set("Content-Type", contentType(filePath))
	if sizeErr == nil {
		r.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	c.WebService.SetStatus(analyzable.StatusOK)
	tx.RunPhase(tasks.StartedReceiving)

	if len(c.Response().BodyTransforms()) > 0 {
		b, complete, err := scheme.ReceiveBuffered(tx, rsp, "ftpscheme")
		c.Timing.Mark(analyzable.Stop)
		if err != nil {
			return fmt.Errorf("transfer of %s failed: %w", filePath, err)
		}

		if !complete {
			return nil
		}

		r.Body.Write(b)
		return scheme.EmitBuffered(tx, b)
	}

	tx.WriteHeader()
	_, err = scheme.CopyStream(tx.Writer, io.TeeReader(rsp, r.Body))
	c.Timing.Mark(analyzable.Stop)
	if err != nil {
		return fmt.Errorf("transfer of %s failed: %w", filePath, err)
	}

	return nil
}
