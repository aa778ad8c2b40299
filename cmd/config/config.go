package config

import (
	"github.com/spf13/cobra"
)

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect gateway configuration files",
}

func init() {
	ConfigCmd.AddCommand(ValidateCmd)
}
