package smtp

import (
	"errors"
	"net/mail"
	"strings"
)

// MailAddress splits a mailbox into its display name, local part and
// domain. It is used by Handler implementations, for example to decide
// whether a recipient's domain is local; the core Command/Action types
// carry addresses as plain strings.
type MailAddress struct {
	Name   string
	Local  string
	Domain string
}

func (m *MailAddress) String() string {
	a := mail.Address{Name: m.Name, Address: m.Local + "@" + m.Domain}
	return a.String()
}

// ParseAddress parses a raw address string and validates it against the
// RFC 5321 §4.5.3.1 length limits.
func ParseAddress(addressStr string) (*MailAddress, error) {
	address, err := mail.ParseAddress(addressStr)
	if err != nil {
		return nil, err
	}

	index := strings.LastIndex(address.Address, "@")
	if index < 0 {
		return nil, errors.New("address missing @")
	}
	local := address.Address[:index]
	domain := address.Address[index+1:]

	m := MailAddress{Name: address.Name, Local: local, Domain: domain}
	if valid, msg := m.Validate(); !valid {
		return nil, errors.New(msg)
	}
	return &m, nil
}

// Validate checks length limits derived from RFC 5321 §4.5.3.1:
//
//	Local-part:          at most 64 octets
//	Domain:              at most 253 octets
//	Local-part + domain: at most 254 octets total
func (m *MailAddress) Validate() (bool, string) {
	if len(m.Local) > 64 {
		return false, "local part too long"
	}
	if len(m.Domain) > 253 {
		return false, "domain too long"
	}
	if len(m.Domain)+len(m.Local) > 254 {
		return false, "address too long"
	}
	return true, ""
}

// IsLocal reports whether domain matches one of the hostnames this server
// is authoritative for.
func IsLocal(domain string, localDomains []string) bool {
	for _, d := range localDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}
