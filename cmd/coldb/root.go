package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/submergedb/coldb/errors"
	"github.com/submergedb/coldb/logger"
)

// cli carries what every subcommand shares once the root has parsed its
// flags.
type cli struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	configPath string
	logLevel   string

	cfg Config
	log logger.Logger
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	rc := &cobra.Command{
		Use:   "coldb",
		Short: "Write and read columnar layer files.",
		Long: `coldb writes layer files from JSON columns and reads them back.

A layer file holds blocks of rows, one track per column, each track
dictionary encoded or, for arithmetic integer sequences, implicit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}
	rc.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "TOML configuration file to read from.")
	rc.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error. Overrides the config file.")

	rc.AddCommand(newEncodeCommand(c))
	rc.AddCommand(newInspectCommand(c))
	rc.AddCommand(newCatCommand(c))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	c.cfg = cfg
	c.log, err = logger.NewLogrusLogger(c.stderr, cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	errors.SetLogger(c.log.WithField("source", "errors"))
	return nil
}
