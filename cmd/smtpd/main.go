package main

import (
	"context"
	"flag"
	"io/ioutil"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/trangar/smtpd/maildirhandler"
	"github.com/trangar/smtpd/smtp"
	"github.com/trangar/smtpd/user"
)

func main() {
	flag.Parse()

	logger := logrus.StandardLogger()
	if !*foreground {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	cfg, err := ParseConfig(*configFile)
	if err != nil {
		logger.WithError(err).Fatal("could not load config")
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("smtpd exited")
	}
}

func run(cfg *Config, logger *logrus.Logger) error {
	builder := smtp.NewConfigBuilder().
		WithHostname(cfg.Hostname).
		WithServerName(cfg.ServerName).
		WithMaxSize(cfg.MaxSize).
		WithLogger(logger)

	if cfg.SmtpUtf8 {
		builder.WithSmtpUtf8()
	}

	if cfg.TLS != nil {
		data, err := ioutil.ReadFile(cfg.TLS.PKCS12File)
		if err != nil {
			return err
		}
		builder, err = builder.WithPKCS12Certificate(data, cfg.TLS.PKCS12Password)
		if err != nil {
			return err
		}
	}

	smtpCfg := builder.Build()

	var db *user.UserDB
	if cfg.UserDB != "" {
		var err error
		db, err = user.LoadDB(cfg.UserDB)
		if err != nil {
			return err
		}
	} else {
		db = &user.UserDB{}
	}

	handler := maildirhandler.New(cfg.Maildir, db, logger)
	server := smtp.NewServer(smtpCfg, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	errs := make(chan error, len(cfg.Listeners))
	for _, lc := range cfg.Listeners {
		lc := lc
		ln, err := net.Listen("tcp", lc.Address)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"address":      lc.Address,
			"implicit_tls": lc.ImplicitTLS,
		}).Info("listening")

		go func() {
			if lc.ImplicitTLS {
				errs <- server.ServeTLS(ctx, ln)
			} else {
				errs <- server.Serve(ctx, ln)
			}
		}()
	}

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return nil
	}
}
