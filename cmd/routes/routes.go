package routes

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/edgegate/cmd/helpers"
	"github.com/stephnangue/edgegate/config"
	"github.com/stephnangue/edgegate/core"
)

var (
	configPath string

	RoutesCmd = &cobra.Command{
		Use:   "routes",
		Short: "Print the route table and the authentication allowlist",
		Long: `
Usage: edgegate routes --config=<file>

  Print the effective route table in declaration order, the routes shadowed
  by an earlier route with the same prefix, and the paths that bypass rate
  limiting and authentication.
  `,
		RunE: run,
	}
)

func init() {
	RoutesCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	_ = RoutesCmd.MarkFlagRequired("config")
}

func run(cmd *cobra.Command, args []string) error {
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	table, err := core.BuildRouteTable(conf)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	rows := make([][]any, 0, len(table.Routes()))
	for _, r := range table.Routes() {
		rows = append(rows, []any{r.Prefix, r.Service, r.Rewrite.String()})
	}
	fmt.Fprintf(out, "Routes\n\n")
	if err := helpers.PrintTable(out, []string{"Prefix", "Service", "Rewrite"}, rows); err != nil {
		return err
	}

	if shadowed := table.Shadowed(); len(shadowed) > 0 {
		rows = rows[:0]
		for _, r := range shadowed {
			rows = append(rows, []any{r.Prefix, r.Service})
		}
		fmt.Fprintf(out, "\nShadowed routes\n\n")
		if err := helpers.PrintTable(out, []string{"Prefix", "Service"}, rows); err != nil {
			return err
		}
	}

	allow := core.NewAllowlist(table.Routes(), conf.AuthLoginPrefix, conf.AllowlistExtra)
	rows = rows[:0]
	for _, p := range allow.Entries() {
		rows = append(rows, []any{p})
	}
	fmt.Fprintf(out, "\nAllowlist\n\n")
	return helpers.PrintTable(out, []string{"Path"}, rows)
}
