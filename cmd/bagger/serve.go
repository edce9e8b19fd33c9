package main

import (
	"os"

	raven "github.com/getsentry/raven-go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ndlib/replication/audit"
	"github.com/ndlib/replication/fixitydb"
	"github.com/ndlib/replication/replica"
	"github.com/ndlib/replication/server"
)

var (
	servePort   string
	serveRate   int64
	serveMySQL  string
	serveTokens string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "audit the bags in the replica cache and serve the results",
	Long: `serve schedules a fixity check of every bag in the replica cache that
has none, then checks bags in the background at the configured rate. The
results are served over HTTP.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port for the status server")
	serveCmd.Flags().Int64Var(&serveRate, "rate", 0, "MB/hour to read when checking bags, 0 disables checking")
	serveCmd.Flags().StringVar(&serveMySQL, "mysql", "", "MySQL DSN, e.g. user:password@tcp(localhost:3306)/fixity")
	serveCmd.Flags().StringVar(&serveTokens, "tokens", "", "file of API keys")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Audit.Port = servePort
	}
	if flags.Changed("rate") {
		cfg.Audit.Rate = serveRate
	}
	if flags.Changed("mysql") {
		cfg.Audit.MySQL = serveMySQL
	}
	if flags.Changed("tokens") {
		cfg.Audit.Tokens = serveTokens
	}

	if cfg.SentryDSN != "" {
		if err := raven.SetDSN(cfg.SentryDSN); err != nil {
			return err
		}
		log.Infoln("Reporting errors to Sentry")
	}
	if err := os.MkdirAll(cfg.ReplicaCache, 0755); err != nil {
		return err
	}

	var db fixitydb.DB
	var err error
	if cfg.Audit.MySQL != "" {
		log.Infoln("Using MySQL")
		db, err = fixitydb.NewMysql(cfg.Audit.MySQL)
	} else {
		log.WithField("path", cfg.DatabasePath()).Infoln("Using internal database")
		db, err = fixitydb.NewQl(cfg.DatabasePath())
	}
	if err != nil {
		return err
	}
	defer db.Close()

	var validator server.TokenDecoder
	if cfg.Audit.Tokens != "" {
		validator, err = server.NewListDecoderFile(cfg.Audit.Tokens)
		if err != nil {
			return err
		}
	}

	auditor := &audit.Auditor{
		DB:       db,
		Cache:    replica.Cache{Root: cfg.ReplicaCache},
		Rate:     cfg.Audit.Rate,
		Interval: cfg.Audit.Interval.Duration,
		Types:    cfg.Types(),
		Workers:  cfg.Workers,
	}
	if _, err := auditor.Scan(); err != nil {
		return err
	}
	auditor.Start()
	defer auditor.Stop()

	s := &server.RESTServer{
		PortNumber: cfg.Audit.Port,
		DB:         db,
		Auditor:    auditor,
		Validator:  validator,
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Run() }()

	select {
	case sig := <-stopSignals():
		log.Infof("got signal %s, performing shutdown", sig)
		if err := s.Stop(); err != nil {
			log.WithError(err).Warnln("stopping server")
		}
		return nil
	case err := <-errc:
		return err
	}
}
