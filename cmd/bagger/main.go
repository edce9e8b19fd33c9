package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ndlib/replication/config"
)

var (
	cfg *config.Config

	configFile       string
	logLevelStr      string
	logFullTimestamp bool
	checksumTypes    []string
	workers          int
	replicaCache     string
)

var rootCmd = &cobra.Command{
	Use:   "bagger",
	Short: "create, verify, and audit BagIt bags",
	Long: `bagger builds and checks bags in the BagIt 0.97 layout.

Settings are read from the file given by --config. Flags override the file,
and any flag not given on the command line is read from the environment
variable BAGGER_<FLAG NAME>, e.g. BAGGER_REPLICA_CACHE.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	fs := rootCmd.PersistentFlags()
	fs.StringVar(&configFile, "config", "", "path to the TOML settings file")
	fs.StringVar(&logLevelStr, "log-level", "", "log level (default from the settings file, or info)")
	fs.BoolVar(&logFullTimestamp, "log-timestamp", true, "log full timestamp if true, otherwise log time since startup")
	fs.StringSliceVar(&checksumTypes, "checksum-types", nil, "checksum algorithms to use, e.g. sha1,sha256")
	fs.IntVar(&workers, "workers", 0, "number of files to digest at once")
	fs.StringVar(&replicaCache, "replica-cache", "", "directory holding replica bags")

	rootCmd.AddCommand(
		createCmd,
		addCmd,
		tarCmd,
		sealCmd,
		infoCmd,
		verifyCmd,
		diffCmd,
		digestCmd,
		replicateCmd,
		serveCmd,
	)
}

// loadConfig reads the settings file and applies the flags given on top of
// it.
func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}
	flags := cmd.Flags()
	if flags.Changed("checksum-types") {
		if err := cfg.SetTypes(checksumTypes); err != nil {
			return err
		}
	}
	if flags.Changed("workers") && workers > 0 {
		cfg.Workers = workers
	}
	if flags.Changed("replica-cache") {
		cfg.ReplicaCache = replicaCache
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelStr
	}
	return SetupLogger(cfg.LogLevel, logFullTimestamp)
}

func main() {
	if err := SetFlagsFromEnv(rootCmd.PersistentFlags(), "BAGGER"); err != nil {
		log.WithError(err).Fatalf("error setting flags from environment variables: %v", err)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
