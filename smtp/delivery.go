package smtp

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
)

// DeliveryPipeline decouples a Connection from the Handler, calling it
// directly and synchronously: exactly one invocation per accepted
// message, with per-connection ordering preserved. It accepts concurrent
// calls from many connections, holding no lock of its own, relying
// entirely on the Handler being safe for concurrent use.
type DeliveryPipeline struct {
	handler Handler
	logger  logrus.FieldLogger
}

// NewDeliveryPipeline wraps handler for use by connection drivers.
func NewDeliveryPipeline(handler Handler, logger logrus.FieldLogger) *DeliveryPipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DeliveryPipeline{handler: handler, logger: logger}
}

// ValidateAddress forwards to the wrapped Handler, implementing
// AddressValidator for the state machine.
func (p *DeliveryPipeline) ValidateAddress(ctx context.Context, address string) bool {
	return p.handler.ValidateAddress(ctx, address)
}

// Deliver parses the MIME tree, assembles a Message, and invokes the
// handler's SaveEmail exactly once. It returns ok=true on success; on
// failure it returns the text that should be surfaced to the client in a
// 500 reply.
func (p *DeliveryPipeline) Deliver(ctx context.Context, peerAddr net.Addr, tlsUsed bool, sender, recipient string, body []byte) (ok bool, replyText string) {
	msg, err := parseMessage(peerAddr, tlsUsed, sender, recipient, body)
	if err != nil {
		p.logger.WithError(err).Warn("could not parse email body")
		return false, err.Error()
	}

	if err := p.invokeHandler(ctx, msg); err != nil {
		p.logger.WithError(err).Warn("handler rejected email")
		return false, err.Error()
	}

	p.logger.WithFields(logrus.Fields{
		"sender":    sender,
		"recipient": recipient,
	}).Debug("received email")
	return true, ""
}

// invokeHandler calls the handler, recovering a panic into an error so a
// broken handler can never bring down other connections.
func (p *DeliveryPipeline) invokeHandler(ctx context.Context, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).Error("handler panicked while saving email")
			err = &handlerPanicError{value: r}
		}
	}()
	return p.handler.SaveEmail(ctx, msg)
}

type handlerPanicError struct {
	value interface{}
}

func (e *handlerPanicError) Error() string {
	return "handler panicked"
}
