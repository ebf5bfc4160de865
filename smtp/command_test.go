package smtp

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseCommand(t *testing.T) {
	Convey("EHLO", t, func() {
		cmd, err := ParseCommand("EHLO mail.example.com")
		So(err, ShouldBeNil)
		So(cmd.Kind, ShouldEqual, CommandEhlo)
		So(cmd.Host, ShouldEqual, "mail.example.com")
	})

	Convey("MAIL FROM with headers", t, func() {
		cmd, err := ParseCommand("MAIL FROM:<a@x> SIZE=100 BODY=8BITMIME")
		So(err, ShouldBeNil)
		So(cmd.Kind, ShouldEqual, CommandMailFrom)
		So(cmd.Address, ShouldEqual, "a@x")
		So(cmd.Headers["SIZE"], ShouldEqual, "100")
		So(cmd.Headers["BODY"], ShouldEqual, "8BITMIME")
	})

	Convey("MAIL FROM missing fragment", t, func() {
		_, err := ParseCommand("MAIL XXXX:<a@x>")
		So(err, ShouldNotBeNil)
		So(err.Kind, ShouldEqual, ErrInvalidSmtpCommand)
	})

	Convey("MAIL FROM missing address", t, func() {
		_, err := ParseCommand("MAIL FROM: ")
		So(err, ShouldNotBeNil)
		So(err.Kind, ShouldEqual, ErrMissingFromAddress)
	})

	Convey("RCPT TO", t, func() {
		cmd, err := ParseCommand("RCPT TO:<b@y>")
		So(err, ShouldBeNil)
		So(cmd.Kind, ShouldEqual, CommandRecipientTo)
		So(cmd.Address, ShouldEqual, "b@y")
	})

	Convey("RCPT TO with space and unbalanced brackets", t, func() {
		cmd, err := ParseCommand("RCPT TO: <u@v")
		So(err, ShouldBeNil)
		So(cmd.Address, ShouldEqual, "<u@v")
	})

	Convey("bare verbs", t, func() {
		for line, kind := range map[string]CommandKind{
			"DATA": CommandData,
			"RSET": CommandReset,
			"QUIT": CommandQuit,
		} {
			cmd, err := ParseCommand(line)
			So(err, ShouldBeNil)
			So(cmd.Kind, ShouldEqual, kind)
		}
	})

	Convey("STARTTLS", t, func() {
		cmd, err := ParseCommand("starttls")
		So(err, ShouldBeNil)
		So(cmd.Kind, ShouldEqual, CommandStartTls)
	})

	Convey("STAR but not STARTTLS", t, func() {
		_, err := ParseCommand("STARGATE")
		So(err, ShouldNotBeNil)
		So(err.Kind, ShouldEqual, ErrUnknownSmtpCommand)
	})

	Convey("unknown verb", t, func() {
		_, err := ParseCommand("FOOO bar")
		So(err, ShouldNotBeNil)
		So(err.Kind, ShouldEqual, ErrUnknownSmtpCommand)
	})

	Convey("input too short", t, func() {
		_, err := ParseCommand("hi")
		So(err, ShouldNotBeNil)
		So(err.Kind, ShouldEqual, ErrInputTooShort)
	})
}

func TestTrimBrackets(t *testing.T) {
	Convey("idempotent and no-op cases", t, func() {
		So(trimBrackets("test"), ShouldEqual, "test")
		So(trimBrackets("<test>"), ShouldEqual, "test")
		So(trimBrackets("<test"), ShouldEqual, "<test")
		So(trimBrackets("test>"), ShouldEqual, "test>")
		So(trimBrackets("<"), ShouldEqual, "<")
		So(trimBrackets(">"), ShouldEqual, ">")
		So(trimBrackets(""), ShouldEqual, "")
		So(trimBrackets("a<>"), ShouldEqual, "a<>")
		// idempotent on an already-stripped input
		So(trimBrackets(trimBrackets("<test>")), ShouldEqual, "test")
	})
}
