package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// App carries the process environment the commands read from. Tests replace Lookup and Out.
type App struct {
	Version string
	Lookup  func(string) (string, bool)
	Out     io.Writer
}

type Options struct {
	ConfigFile string
	SQLFile    string
	LogLevel   string
}

func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(&App{
		Version: version,
		Lookup:  os.LookupEnv,
		Out:     os.Stdout,
	})
}

func newRootCmd(app *App) *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "jira2bq",
		Short: "jira2bq - export Jira issues from a SQL database into BigQuery",
		Long: `jira2bq runs one SQL query, parameterized by a Jira project key, against the
source database and replaces a BigQuery table with the result.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	rootCmd.SetOut(app.Out)

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "Path to a YAML config file; environment variables take precedence")
	rootCmd.PersistentFlags().StringVar(&opts.SQLFile, "sql", "", "Path to the SQL query file (overrides SQL_FILE)")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(
		newRunCmd(app, opts),
		newCheckCmd(app, opts),
		newHistoryCmd(app, opts),
		newVersionCmd(app),
	)

	return rootCmd
}

func newRunCmd(app *App, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Extract the project's issues and replace the destination table",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return app.runExport(c.Context(), opts)
		},
	}
}

func newCheckCmd(app *App, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and the SQL file without connecting anywhere",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return app.runCheck(c.Context(), opts)
		},
	}
}

func newHistoryCmd(app *App, opts *Options) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the latest runs recorded for the destination table",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return app.runHistory(c.Context(), opts, limit)
		},
	}
	cmd.Flags().Int64VarP(&limit, "limit", "n", 10, "Number of runs to show")

	return cmd
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, args []string) {
			fmt.Fprintf(c.OutOrStdout(), "jira2bq %s\n", app.Version)
		},
	}
}
