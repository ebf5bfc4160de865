package smtp

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/sirupsen/logrus"
)

// Server binds a Configuration and a Handler to any number of listeners.
// A plain listener is served with Serve and an implicit-TLS listener
// (typically port 465) is served with ServeTLS; both accept concurrently
// and dispatch one goroutine per connection.
type Server struct {
	Config  *Configuration
	Handler Handler
	Logger  logrus.FieldLogger
}

// NewServer builds a Server. Registering a TLS listener with ServeTLS
// requires cfg to carry a TLSAcceptor. Callers that configure one
// without calling ConfigBuilder.WithPKCS12Certificate are making a
// programming error and ServeTLS fails fast rather than silently
// accepting plaintext connections under the TLS port.
func NewServer(cfg *Configuration, handler Handler) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		Config:  cfg,
		Handler: handler,
		Logger:  logger,
	}
}

// Serve accepts plain-TCP (optionally later STARTTLS-upgraded)
// connections from ln until Accept returns an error, for example because
// ln was closed. ctx is handed to every connection; cancelling it does not
// stop the accept loop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, ln, false)
}

// ServeTLS accepts implicit-TLS connections from ln: every connection is
// wrapped with the configured TLSAcceptor before the greeting is sent, so
// the session starts already secure (is_tls = true) and STARTTLS is never
// offered on it.
func (s *Server) ServeTLS(ctx context.Context, ln net.Listener) error {
	if s.Config.TLSAcceptor == nil {
		panic("smtp: ServeTLS called without a TLS acceptor configured; call ConfigBuilder.WithPKCS12Certificate first")
	}
	return s.serve(ctx, ln, true)
}

func (s *Server) serve(ctx context.Context, ln net.Listener, implicitTLS bool) error {
	for {
		raw, err := ln.Accept()
		if err != nil {
			return err
		}

		conn := raw
		isTLS := implicitTLS
		if implicitTLS {
			conn = tls.Server(raw, s.Config.TLSAcceptor)
		}

		// Each connection gets its own Handler handle (per the Clone
		// contract) and thus its own DeliveryPipeline, even though many
		// connections commonly share one underlying store.
		pipe := NewDeliveryPipeline(s.Handler.Clone(), s.Logger)

		go func() {
			NewConnection(conn, s.Config, pipe, isTLS).Serve(ctx)
		}()
	}
}
