package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/edgegate/config"
	"github.com/stephnangue/edgegate/core"
	"github.com/stephnangue/edgegate/logger"
)

var (
	configPath string

	ValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file without starting the gateway",
		Long: `
Usage: edgegate config validate --config=<file>

  Parse the file, apply defaults and run every check the server runs at
  startup, including the route table and the service resolver.
  `,
		RunE: runValidate,
	}
)

func init() {
	ValidateCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	_ = ValidateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	table, err := core.BuildRouteTable(conf)
	if err != nil {
		return err
	}
	if _, err := core.BuildResolver(conf, logger.NewNop(), nil); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range table.Shadowed() {
		fmt.Fprintf(out, "warning: route %s (service %s) is shadowed by an earlier route\n", r.Prefix, r.Service)
	}
	fmt.Fprintf(out, "Configuration is valid: %d routes, %d services, %s resolver\n",
		len(table.Routes()), len(table.Services()), conf.ServiceResolver.Kind)
	return nil
}
