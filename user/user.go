package user

import "github.com/trangar/smtpd/smtp"

// User is a locally registered mailbox. maildirhandler consults a UserDB
// of these to answer ValidateAddress during RCPT TO.
type User struct {
	Name  string
	Email smtp.MailAddress
}
