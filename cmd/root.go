// Package cmd wires the storefront command line.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	appVersion string
	appCommit  string
)

// Execute is the entry point called from main.go.
func Execute(version, commit string) {
	appVersion = version
	appCommit = commit

	rootCmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Flower shop cart and session service",
		Long:          "storefront serves the shop's cart and mock sign-in over a JSON API, keeping each visitor's state in key-value storage.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "storefront %s (%s)\n", appVersion, appCommit)
		},
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}
	return log
}
