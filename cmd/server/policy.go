package main

import (
	"github.com/spf13/cobra"

	"github.com/zaqqye/seb_proctoring/internal/config"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Print the effective enforcement policy as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		p, err := config.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return err
		}
		out, err := config.DumpPolicy(p)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
}
