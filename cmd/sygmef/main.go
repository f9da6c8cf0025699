package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sygmef/internal/cache"
	"github.com/smallbiznis/sygmef/internal/clock"
	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/emecf"
	"github.com/smallbiznis/sygmef/internal/invoice"
	"github.com/smallbiznis/sygmef/internal/migration"
	"github.com/smallbiznis/sygmef/internal/observability"
	"github.com/smallbiznis/sygmef/internal/server"
	"github.com/smallbiznis/sygmef/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var rootCmd = &cobra.Command{
	Use:   "sygmef",
	Short: "e-MECeF invoice clearance service",
	Long: `sygmef submits invoices to the Benin DGI e-MECeF API, confirms or
cancels them and keeps a local record of every cleared invoice.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		infoCmd(),
		reconcileCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			fx.New(appModules(server.Module)...).Run()
		},
	}
}

// appModules is the application graph shared by the server and the
// commands that need the invoice service.
func appModules(extra ...fx.Option) []fx.Option {
	opts := []fx.Option{
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		migration.Module,

		// Functional Domains
		emecf.Module,
		invoice.Module,
	}
	return append(opts, extra...)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
