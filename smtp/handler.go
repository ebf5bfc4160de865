package smtp

import (
	"bytes"
	"context"
	"net"

	"github.com/emersion/go-message"
)

// Message is produced at the boundary between the connection driver and
// the delivery pipeline. It is created once body termination is detected,
// borrowed synchronously by the handler's SaveEmail call, and discarded
// immediately after SaveEmail returns.
type Message struct {
	PeerAddr  net.Addr
	TLSUsed   bool
	Sender    string
	Recipient string

	// Parsed is the MIME tree, opaque to the core; parsing is delegated
	// to github.com/emersion/go-message.
	Parsed *message.Entity

	// RawBody is exactly the bytes received from the client, including
	// the trailing "\r\n.\r\n" terminator.
	RawBody []byte
}

// Handler is the external collaborator that persists or forwards a fully
// assembled Message. A single Handler is shared across every Connection;
// implementations must be safe for concurrent use, the same way a
// database connection pool is.
type Handler interface {
	// ValidateAddress is consulted at RCPT TO. It is not consulted for
	// MAIL FROM.
	ValidateAddress(ctx context.Context, address string) bool

	// SaveEmail is called exactly once per received message. A non-nil
	// error's string is surfaced to the client as the text of a 500
	// reply.
	SaveEmail(ctx context.Context, msg *Message) error

	// Clone produces an independent handle suitable for per-connection
	// use.
	Clone() Handler
}

// parseMessage builds a Message from the raw envelope and body, parsing
// the MIME tree via go-message. A parse failure is reported as an
// *EmailParseError.
func parseMessage(peerAddr net.Addr, tlsUsed bool, sender, recipient string, body []byte) (*Message, error) {
	entity, err := message.Read(bytes.NewReader(body))
	if err != nil {
		return nil, &EmailParseError{Err: err}
	}

	return &Message{
		PeerAddr:  peerAddr,
		TLSUsed:   tlsUsed,
		Sender:    sender,
		Recipient: recipient,
		Parsed:    entity,
		RawBody:   body,
	}, nil
}

// EmailParseError wraps a MIME parsing failure from the delivery
// pipeline.
type EmailParseError struct {
	Err error
}

func (e *EmailParseError) Error() string { return "parsing email: " + e.Err.Error() }
func (e *EmailParseError) Unwrap() error { return e.Err }
