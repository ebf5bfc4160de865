// Package maildirhandler is a reference smtp.Handler that accepts mail for
// a fixed set of locally registered users and deposits each message into a
// per-user Maildir, following the handler-as-collaborator split described
// by the core smtp package: the engine never touches storage directly.
package maildirhandler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	maildir "github.com/sloonz/go-maildir"

	"github.com/trangar/smtpd/smtp"
	"github.com/trangar/smtpd/user"
)

// Handler delivers accepted mail into one Maildir per known recipient.
// It is safe for concurrent use: the user directory is read-only after
// load, and maildir.Maildir.Create allocates a unique file per delivery.
type Handler struct {
	BaseDir string
	DB      *user.UserDB
	Logger  logrus.FieldLogger
}

// New builds a Handler that accepts mail for any recipient present in db,
// writing each one's mail under baseDir/<local-part>/.
func New(baseDir string, db *user.UserDB, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{BaseDir: baseDir, DB: db, Logger: logger}
}

// ValidateAddress reports whether address's local part is a known user.
// Consulted by the engine at RCPT TO only; MAIL FROM is never checked
// against this directory, since the sender is outside this server's
// authority.
func (h *Handler) ValidateAddress(ctx context.Context, address string) bool {
	addr, err := smtp.ParseAddress(address)
	if err != nil {
		return false
	}
	return h.DB.UserExists(addr.Local)
}

// SaveEmail appends msg to the recipient's Maildir.
func (h *Handler) SaveEmail(ctx context.Context, msg *smtp.Message) error {
	addr, err := smtp.ParseAddress(msg.Recipient)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.Recipient, err)
	}

	dir, err := maildir.NewMaildir(filepath.Join(h.BaseDir, addr.Local))
	if err != nil {
		return fmt.Errorf("opening maildir: %w", err)
	}

	delivery, err := dir.Create(nil)
	if err != nil {
		return fmt.Errorf("starting delivery: %w", err)
	}
	if _, err := delivery.Write(msg.RawBody); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := delivery.Close(); err != nil {
		return fmt.Errorf("closing delivery: %w", err)
	}

	h.Logger.WithFields(logrus.Fields{
		"sender":    msg.Sender,
		"recipient": msg.Recipient,
	}).Info("message delivered")
	return nil
}

// Clone returns a Handler sharing the same user directory and base path;
// per the Handler contract a new one is handed to every Connection.
func (h *Handler) Clone() smtp.Handler {
	clone := *h
	return &clone
}
