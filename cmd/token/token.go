package token

import (
	"github.com/spf13/cobra"
)

var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with gateway bearer tokens",
}

func init() {
	TokenCmd.AddCommand(IssueCmd)
}
