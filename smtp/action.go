package smtp

// ActionKind classifies the result of a state transition.
type ActionKind int

const (
	// ActionSilent means no reply should be written.
	ActionSilent ActionKind = iota
	// ActionReply writes a single reply line.
	ActionReply
	// ActionReplyMultiline writes a multi-line reply.
	ActionReplyMultiline
	// ActionEmailReceived signals the connection driver to run the
	// delivery pipeline.
	ActionEmailReceived
	// ActionUpgradeTls signals the connection driver to perform the
	// STARTTLS handshake.
	ActionUpgradeTls
	// ActionQuit signals the connection driver to close the session.
	ActionQuit
)

// Action is the result of feeding a Command into the protocol state
// machine.
type Action struct {
	Kind ActionKind

	// Code and Text are set for ActionReply.
	Code int
	Text string

	// Lines is set for ActionReplyMultiline; Code still applies to every
	// line.
	Lines []string

	// Sender, Recipient and Body are set for ActionEmailReceived.
	Sender    string
	Recipient string
	Body      []byte
}
