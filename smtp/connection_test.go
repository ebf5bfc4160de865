package smtp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeHandler is a minimal in-memory Handler for exercising Connection.Serve.
type fakeHandler struct {
	saveErr  error
	validate bool
	saved    []*Message
}

func (h *fakeHandler) ValidateAddress(ctx context.Context, address string) bool {
	return h.validate
}

func (h *fakeHandler) SaveEmail(ctx context.Context, msg *Message) error {
	if h.saveErr != nil {
		return h.saveErr
	}
	h.saved = append(h.saved, msg)
	return nil
}

func (h *fakeHandler) Clone() Handler {
	clone := *h
	return &clone
}

// pipeConnection wires a Connection up over net.Pipe and hands back the
// client side, a reader over it, and a channel closed once Serve returns.
func pipeConnection(cfg *Configuration, handler Handler) (client net.Conn, reader *bufio.Reader, done <-chan struct{}) {
	server, clientConn := net.Pipe()
	pipe := NewDeliveryPipeline(handler, cfg.Logger)
	conn := NewConnection(server, cfg, pipe, false)

	finished := make(chan struct{})
	go func() {
		conn.Serve(context.Background())
		close(finished)
	}()

	return clientConn, bufio.NewReader(clientConn), finished
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func TestScenarioHappyPath(t *testing.T) {
	Convey("S1: happy path, plain", t, func() {
		cfg := NewConfigBuilder().
			WithHostname("mail.example").
			WithServerName("smtp.example Ready").
			WithMaxSize(10 * 1024 * 1024).
			Build()
		handler := &fakeHandler{validate: true}
		client, r, _ := pipeConnection(cfg, handler)
		defer client.Close()

		So(readLine(t, r), ShouldEqual, "220 mail.example smtp.example Ready")

		client.Write([]byte("EHLO me\r\n"))
		So(readLine(t, r), ShouldEqual, "250-me, nice to meet you!")
		So(readLine(t, r), ShouldEqual, "250 SIZE 10485760")

		client.Write([]byte("MAIL FROM:<a@x>\r\n"))
		So(readLine(t, r), ShouldEqual, "250 Tell them I said hi")

		client.Write([]byte("RCPT TO:<b@y>\r\n"))
		So(readLine(t, r), ShouldEqual, "250 I'll make sure to get this to them")

		client.Write([]byte("DATA\r\n"))
		So(readLine(t, r), ShouldEqual, "354 Go ahead, I'm listening (end with \\r\\n.\\r\\n)")

		client.Write([]byte("Subject: hi\r\n\r\nhello\r\n.\r\n"))
		So(readLine(t, r), ShouldEqual, "250 Email received, over and out!")

		So(len(handler.saved), ShouldEqual, 1)
		So(handler.saved[0].Sender, ShouldEqual, "a@x")
		So(handler.saved[0].Recipient, ShouldEqual, "b@y")
	})
}

func TestScenarioHandlerFailure(t *testing.T) {
	Convey("S2: handler failure, then RSET recovers", t, func() {
		cfg := NewConfigBuilder().WithHostname("mail.example").WithServerName("Ready").WithMaxSize(1024).Build()
		handler := &fakeHandler{validate: true, saveErr: errString("disk full")}
		client, r, _ := pipeConnection(cfg, handler)
		defer client.Close()

		readLine(t, r) // greeting
		client.Write([]byte("EHLO me\r\n"))
		readLine(t, r)
		readLine(t, r)
		client.Write([]byte("MAIL FROM:<a@x>\r\n"))
		readLine(t, r)
		client.Write([]byte("RCPT TO:<b@y>\r\n"))
		readLine(t, r)
		client.Write([]byte("DATA\r\n"))
		readLine(t, r)
		client.Write([]byte("Subject: hi\r\n\r\nhello\r\n.\r\n"))
		So(readLine(t, r), ShouldEqual, "500 disk full")

		client.Write([]byte("RSET\r\n"))
		So(readLine(t, r), ShouldEqual, "250 We're ready to go another round!")
	})
}

func TestScenarioOutOfOrder(t *testing.T) {
	Convey("S3: out-of-order command recovers", t, func() {
		cfg := NewConfigBuilder().WithHostname("mail.example").WithServerName("Ready").Build()
		handler := &fakeHandler{validate: true}
		client, r, _ := pipeConnection(cfg, handler)
		defer client.Close()

		readLine(t, r) // greeting
		client.Write([]byte("MAIL FROM:<a>\r\n"))
		line := readLine(t, r)
		So(line, ShouldStartWith, "500")

		client.Write([]byte("EHLO me\r\n"))
		line = readLine(t, r)
		So(line, ShouldStartWith, "250")
	})
}

func TestScenarioOversizeBody(t *testing.T) {
	Convey("S5: oversize body clears and recovers", t, func() {
		cfg := NewConfigBuilder().WithHostname("mail.example").WithServerName("Ready").WithMaxSize(100).Build()
		handler := &fakeHandler{validate: true}
		client, r, _ := pipeConnection(cfg, handler)
		defer client.Close()

		readLine(t, r)
		client.Write([]byte("EHLO me\r\n"))
		readLine(t, r)
		readLine(t, r)
		client.Write([]byte("MAIL FROM:<a@x>\r\n"))
		readLine(t, r)
		client.Write([]byte("RCPT TO:<b@y>\r\n"))
		readLine(t, r)
		client.Write([]byte("DATA\r\n"))
		readLine(t, r)

		oversize := strings.Repeat("x", 200)
		client.Write([]byte(oversize))
		So(readLine(t, r), ShouldStartWith, "500")

		client.Write([]byte("EHLO again\r\n"))
		line := readLine(t, r)
		So(line, ShouldStartWith, "250")
	})
}

func TestScenarioAngleBrackets(t *testing.T) {
	Convey("S6: RCPT TO with a space before a bracketed address is accepted", t, func() {
		cfg := NewConfigBuilder().WithHostname("mail.example").WithServerName("Ready").Build()
		handler := &fakeHandler{validate: true}
		client, r, _ := pipeConnection(cfg, handler)
		defer client.Close()

		readLine(t, r)
		client.Write([]byte("EHLO me\r\n"))
		readLine(t, r)
		client.Write([]byte("MAIL FROM:<a@x>\r\n"))
		readLine(t, r)

		client.Write([]byte("RCPT TO: <u@v>\r\n"))
		line := readLine(t, r)
		So(line, ShouldStartWith, "250")
	})
}

type errString string

func (e errString) Error() string { return string(e) }
