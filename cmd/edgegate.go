package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	configcmd "github.com/stephnangue/edgegate/cmd/config"
	"github.com/stephnangue/edgegate/cmd/routes"
	"github.com/stephnangue/edgegate/cmd/server"
	tokencmd "github.com/stephnangue/edgegate/cmd/token"
)

var edgegateCmd = &cobra.Command{
	Use:   "edgegate",
	Short: "Edgegate is the HTTP edge gateway of the storefront platform",
	Long: `Edgegate is the single entry point for storefront clients. It applies CORS,
rate limiting and bearer token authentication, injects the caller identity as
trusted headers and forwards each request to the backend service owning its path.`,
	SilenceUsage: true,
}

func Execute() {
	if err := edgegateCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	edgegateCmd.AddCommand(server.ServerCmd)
	edgegateCmd.AddCommand(routes.RoutesCmd)
	edgegateCmd.AddCommand(tokencmd.TokenCmd)
	edgegateCmd.AddCommand(configcmd.ConfigCmd)
}
