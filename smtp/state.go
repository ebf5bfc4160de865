package smtp

import "context"

// AddressValidator is consulted at RCPT TO. DeliveryPipeline implements
// it by forwarding to the configured Handler, keeping the state machine
// itself free of any dependency on Handler.
type AddressValidator interface {
	ValidateAddress(ctx context.Context, address string) bool
}

// SessionStateKind tags the current step of one connection's SMTP
// conversation.
type SessionStateKind int

const (
	StateInitial SessionStateKind = iota
	StateEhloReceived
	StateSenderReceived
	StateRecipientReceived
	StateReceivingBody
	StateDone
)

// SessionState is exclusively owned by its Connection; it is never shared
// or mutated from more than one goroutine.
type SessionState struct {
	Kind SessionStateKind

	// Sender is set from StateSenderReceived onward.
	Sender string
	// Recipient is set from StateRecipientReceived onward.
	Recipient string
	// Body only exists in StateReceivingBody. Once the state leaves
	// StateReceivingBody the buffer has been moved into an
	// ActionEmailReceived and is never resurrected.
	Body []byte
}

// StateError is returned when a Command is illegal in the current state.
type StateError struct {
	// Expected is a hint describing what the session actually wants next.
	Expected string
}

func (e *StateError) Error() string {
	return "unexpected command, expected " + e.Expected
}

// expected derives the StateError hint for the current state.
func (s SessionStateKind) expected() string {
	switch s {
	case StateInitial:
		return "EHLO"
	case StateEhloReceived:
		return "MAIL FROM"
	case StateSenderReceived:
		return "RCPT TO"
	case StateRecipientReceived:
		return "BODY"
	case StateDone:
		return "QUIT or RSET"
	}
	return "nothing"
}

// HandleCommand drives the state machine one step. ReceivingBody is a
// sink, not a source, of commands: the connection driver must not call
// HandleCommand while Kind == StateReceivingBody; body bytes are fed
// through Framer instead.
func (s *SessionState) HandleCommand(ctx context.Context, cmd Command, cfg *Configuration, tlsActive bool, validator AddressValidator) (Action, error) {
	switch {
	case cmd.Kind == CommandQuit:
		*s = SessionState{Kind: StateInitial}
		return Action{Kind: ActionQuit}, nil

	case cmd.Kind == CommandReset:
		wasDone := s.Kind == StateDone
		*s = SessionState{Kind: StateEhloReceived}
		if wasDone {
			return Action{Kind: ActionReply, Code: 250, Text: "We're ready to go another round!"}, nil
		}
		return Action{Kind: ActionReply, Code: 250, Text: "I'm sorry, who are you again?"}, nil

	case s.Kind == StateInitial && cmd.Kind == CommandEhlo:
		*s = SessionState{Kind: StateEhloReceived}
		lines := []string{cmd.Host + ", nice to meet you!"}
		for _, c := range cfg.Capabilities {
			if c == CapabilityStartTls && tlsActive {
				// RFC 3207 §4.2: MUST NOT advertise STARTTLS once TLS is active.
				continue
			}
			lines = append(lines, c.line(cfg.MaxReceiveLength))
		}
		return Action{Kind: ActionReplyMultiline, Code: 250, Lines: lines}, nil

	case s.Kind == StateEhloReceived && cmd.Kind == CommandMailFrom:
		*s = SessionState{Kind: StateSenderReceived, Sender: cmd.Address}
		return Action{Kind: ActionReply, Code: 250, Text: "Tell them I said hi"}, nil

	case s.Kind == StateSenderReceived && cmd.Kind == CommandRecipientTo:
		// The handler is consulted here, at RCPT TO, never at MAIL FROM.
		// A rejection keeps the session in SenderReceived so the client
		// can retry RCPT TO with a different address.
		if validator != nil && !validator.ValidateAddress(ctx, cmd.Address) {
			return Action{Kind: ActionReply, Code: 550, Text: "No such recipient here"}, nil
		}
		*s = SessionState{Kind: StateRecipientReceived, Sender: s.Sender, Recipient: cmd.Address}
		return Action{Kind: ActionReply, Code: 250, Text: "I'll make sure to get this to them"}, nil

	case s.Kind == StateRecipientReceived && cmd.Kind == CommandData:
		*s = SessionState{Kind: StateReceivingBody, Sender: s.Sender, Recipient: s.Recipient, Body: nil}
		return Action{Kind: ActionReply, Code: 354, Text: "Go ahead, I'm listening (end with \\r\\n.\\r\\n)"}, nil

	case s.Kind == StateEhloReceived && cmd.Kind == CommandStartTls:
		if !cfg.hasCapability(CapabilityStartTls) {
			return Action{}, &StateError{Expected: s.Kind.expected()}
		}
		*s = SessionState{Kind: StateInitial}
		return Action{Kind: ActionUpgradeTls}, nil

	default:
		return Action{}, &StateError{Expected: s.Kind.expected()}
	}
}
