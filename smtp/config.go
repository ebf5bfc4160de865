package smtp

import (
	"crypto/tls"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"software.sslmate.com/src/go-pkcs12"
)

// Configuration holds the static, immutable-after-build parameters for a
// session. It is shared by reference across every Connection; nothing in
// this package mutates it after ConfigBuilder.Build returns.
type Configuration struct {
	Hostname         string
	ServerName       string
	MaxReceiveLength int
	Capabilities     []Capability
	TLSAcceptor      *tls.Config

	Logger logrus.FieldLogger
}

func (c *Configuration) hasCapability(want Capability) bool {
	for _, c := range c.Capabilities {
		if c == want {
			return true
		}
	}
	return false
}

// ConfigBuilder builds an immutable Configuration. Each With* call
// appends exactly the capability (or capabilities) it represents.
type ConfigBuilder struct {
	cfg Configuration
}

// NewConfigBuilder returns a builder seeded with sensible defaults:
// a maximum receive length of math.MaxInt32 bytes, no TLS, no
// capabilities.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: Configuration{
			Hostname:         "smtp.example.com",
			ServerName:       "Go SMTP server",
			MaxReceiveLength: math.MaxInt32,
			Logger:           logrus.StandardLogger(),
		},
	}
}

func (b *ConfigBuilder) WithHostname(hostname string) *ConfigBuilder {
	b.cfg.Hostname = hostname
	return b
}

func (b *ConfigBuilder) WithServerName(name string) *ConfigBuilder {
	b.cfg.ServerName = name
	return b
}

func (b *ConfigBuilder) WithLogger(logger logrus.FieldLogger) *ConfigBuilder {
	b.cfg.Logger = logger
	return b
}

// WithMaxSize sets the maximum receive length (bounding both command-line
// length and total DATA body length) and advertises SIZE.
func (b *ConfigBuilder) WithMaxSize(maxSize int) *ConfigBuilder {
	b.cfg.MaxReceiveLength = maxSize
	b.cfg.Capabilities = append(b.cfg.Capabilities, CapabilitySize)
	return b
}

// WithSmtpUtf8 advertises SMTPUTF8.
func (b *ConfigBuilder) WithSmtpUtf8() *ConfigBuilder {
	b.cfg.Capabilities = append(b.cfg.Capabilities, CapabilitySmtpUtf8)
	return b
}

// WithPKCS12Certificate loads a PKCS#12 identity (certificate + private
// key) and advertises STARTTLS.
func (b *ConfigBuilder) WithPKCS12Certificate(data []byte, password string) (*ConfigBuilder, error) {
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decoding PKCS#12 identity: %w", err)
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}

	b.cfg.TLSAcceptor = &tls.Config{Certificates: []tls.Certificate{tlsCert}}
	b.cfg.Capabilities = append(b.cfg.Capabilities, CapabilityStartTls)
	return b, nil
}

// Build returns the immutable Configuration.
func (b *ConfigBuilder) Build() *Configuration {
	cfg := b.cfg
	cfg.Capabilities = append([]Capability(nil), b.cfg.Capabilities...)
	return &cfg
}
