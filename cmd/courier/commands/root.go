package commands

import (
	"fmt"
	"log"
	"log/syslog"

	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/spf13/cobra"

	"github.com/arloliu/courier/config"
	"github.com/arloliu/courier/internal/logging"
)

var (
	configFile string
	logLevel   string
	syslogAddr string
	tag        string
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Store-and-forward transmission of records over constrained links",
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if syslogAddr != "" {
			hook, err := logrus_syslog.NewSyslogHook("udp", syslogAddr, syslog.LOG_INFO, tag)
			if err != nil {
				return fmt.Errorf("unable to connect to syslog daemon on %v: %w", syslogAddr, err)
			}
			logging.AddHook(hook)
		}

		if logLevel == "" {
			return nil
		}
		level, err := logging.LevelFromString(logLevel)
		if err != nil {
			return err
		}
		logging.SetLevel(level)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file, defaults to $"+config.EnvVar)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&syslogAddr, "syslog", "", "syslog server address. E.g. localhost:514")
	rootCmd.PersistentFlags().StringVar(&tag, "tag", "courier", "logging tag")
}

// loadConfig loads the --config file, falling back to the environment.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}

	return config.Load()
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
