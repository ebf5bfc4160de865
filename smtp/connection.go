package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// readChunkSize is the size of each read(2) into the connection.
const readChunkSize = 1024

// Connection owns a single TCP (or TLS) socket exclusively: its own
// SessionState and Framer, no locking. It is constructed by Server per
// accepted socket.
type Connection struct {
	conn   net.Conn
	framer *Framer
	state  SessionState
	cfg    *Configuration
	pipe   *DeliveryPipeline
	logger logrus.FieldLogger

	peerAddr net.Addr
	isTLS    bool
}

// NewConnection wraps c for serving. isTLS should be true when c is
// already a TLS connection, e.g. from an implicit-TLS listener.
func NewConnection(c net.Conn, cfg *Configuration, pipe *DeliveryPipeline, isTLS bool) *Connection {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	peerAddr := c.RemoteAddr()
	return &Connection{
		conn:     c,
		framer:   NewFramer(cfg.MaxReceiveLength),
		state:    SessionState{Kind: StateInitial},
		cfg:      cfg,
		pipe:     pipe,
		isTLS:    isTLS,
		peerAddr: peerAddr,
		logger: logger.WithFields(logrus.Fields{
			"remote_addr": peerAddr,
		}),
	}
}

// Serve runs the connection's lifecycle to completion: greeting, command
// loop, STARTTLS upgrade, DATA accumulation and delivery, until the
// session quits, the peer disconnects, or a fatal error occurs. The
// underlying socket is always closed before Serve returns.
func (c *Connection) Serve(ctx context.Context) {
	defer c.conn.Close()

	greeting := fmt.Sprintf("220 %s %s\r\n", c.cfg.Hostname, c.cfg.ServerName)
	if err := c.writeRaw(greeting); err != nil {
		c.logger.WithError(err).Warn("could not write greeting")
		return
	}

	for {
		if c.framer.InBodyMode() {
			chunk, ok := c.readChunk()
			if !ok {
				return
			}
			if !c.handleBodyChunk(ctx, chunk) {
				return
			}
			continue
		}

		chunk, ok := c.readChunk()
		if !ok {
			return
		}

		c.framer.Feed(chunk)
		for {
			line, ok := c.framer.NextLine()
			if !ok {
				break
			}
			if !c.handleLine(ctx, line) {
				return
			}
			if c.framer.InBodyMode() {
				break
			}
		}

		if c.framer.InBodyMode() {
			// A DATA line and the start of its body can arrive in the
			// same read; those bytes are already sitting in the body
			// buffer, so check them for completion before asking the
			// socket for more.
			if !c.handleBodyChunk(ctx, nil) {
				return
			}
			continue
		}

		if err := c.framer.CheckMaxLength(); err != nil {
			c.logger.WithError(err).Warn("command line too long")
			if !c.writeReply(500, err.Error()) {
				return
			}
		}
	}
}

// readChunk reads the next chunk from the socket. ok is false when the
// connection should be closed; any necessary logging has already
// happened in that case.
func (c *Connection) readChunk() (chunk []byte, ok bool) {
	buf := make([]byte, readChunkSize)
	n, err := c.conn.Read(buf)
	if n > 0 {
		return buf[:n], true
	}

	if err == nil || err == io.EOF {
		switch {
		case c.framer.InBodyMode():
			c.logger.Info("client disconnected mid-body")
		case c.framer.CheckEof() != nil:
			c.logger.Warn("client disconnected with unterminated command")
		default:
			c.logger.Info("client disconnected")
		}
		return nil, false
	}

	c.logger.WithError(err).Warn("read error")
	return nil, false
}

// handleLine parses and executes one command line. It returns false if
// the connection should close.
func (c *Connection) handleLine(ctx context.Context, line string) bool {
	cmd, perr := ParseCommand(line)
	if perr != nil {
		c.logger.WithError(perr).Debug("could not parse command")
		return c.writeReply(500, perr.Error())
	}

	action, serr := c.state.HandleCommand(ctx, cmd, c.cfg, c.isTLS, c.pipe)
	if serr != nil {
		c.logger.WithError(serr).Debug("command illegal in current state")
		return c.writeReply(500, serr.Error())
	}

	if c.state.Kind == StateReceivingBody {
		c.framer.EnterBodyMode()
	}

	return c.runAction(ctx, action)
}

// runAction executes the Action a state transition produced. It returns
// false if the connection should close.
func (c *Connection) runAction(ctx context.Context, action Action) bool {
	switch action.Kind {
	case ActionSilent:
		return true

	case ActionReply:
		return c.writeReply(action.Code, action.Text)

	case ActionReplyMultiline:
		return c.writeMultiline(action.Code, action.Lines)

	case ActionEmailReceived:
		ok, replyText := c.pipe.Deliver(ctx, c.peerAddr, c.isTLS, action.Sender, action.Recipient, action.Body)
		if ok {
			return c.writeReply(250, "Email received, over and out!")
		}
		return c.writeReply(500, replyText)

	case ActionUpgradeTls:
		return c.upgradeTLS()

	case ActionQuit:
		c.writeRaw("221 Bye\r\n")
		return false
	}
	return true
}

// handleBodyChunk feeds chunk into the body accumulator. chunk may be nil
// to re-check bytes already buffered without reading more from the
// socket. It returns false if the connection should close.
func (c *Connection) handleBodyChunk(ctx context.Context, chunk []byte) bool {
	done, err := c.framer.FeedBody(chunk)
	if err != nil {
		c.logger.WithError(err).Warn("body too long")
		// The buffer is already cleared by FeedBody; drop back to
		// Initial so the session can be driven from scratch (the very
		// next EHLO is accepted).
		c.framer.bodyMode = false
		c.state = SessionState{Kind: StateInitial}
		return c.writeReply(500, err.Error())
	}
	if !done {
		return true
	}

	body := c.framer.TakeBody()
	sender, recipient := c.state.Sender, c.state.Recipient
	c.state = SessionState{Kind: StateDone}

	return c.runAction(ctx, Action{Kind: ActionEmailReceived, Sender: sender, Recipient: recipient, Body: body})
}

// upgradeTLS performs the STARTTLS handshake on the existing socket and
// continues serving on the upgraded stream. STARTTLS is only legal as a
// complete command line on its own, so the command buffer must be empty
// at this point; a client that pipelined another command right behind it
// would have that command executed in plaintext under the cover of a
// session that looks encrypted, so any leftover bytes are treated as an
// attack and the connection is aborted instead of proceeding.
func (c *Connection) upgradeTLS() bool {
	if c.framer.PendingCommandBytes() > 0 {
		c.logger.Error("bytes pipelined across STARTTLS, aborting connection")
		return false
	}

	if err := c.writeRaw("220 Go ahead\r\n"); err != nil {
		c.logger.WithError(err).Warn("could not write STARTTLS go-ahead")
		return false
	}

	tlsConn := tls.Server(c.conn, c.cfg.TLSAcceptor)
	if err := tlsConn.Handshake(); err != nil {
		c.logger.WithError(err).Warn("TLS handshake failed")
		return false
	}

	c.conn = tlsConn
	c.isTLS = true
	c.framer = NewFramer(c.cfg.MaxReceiveLength)
	c.logger.Info("TLS handshake complete")
	return true
}

func (c *Connection) writeReply(code int, text string) bool {
	return c.writeRaw(fmt.Sprintf("%d %s\r\n", code, text)) == nil
}

func (c *Connection) writeMultiline(code int, lines []string) bool {
	for i, line := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		if err := c.writeRaw(fmt.Sprintf("%d%s%s\r\n", code, sep, line)); err != nil {
			return false
		}
	}
	return true
}

func (c *Connection) writeRaw(s string) error {
	_, err := io.WriteString(c.conn, s)
	return err
}
