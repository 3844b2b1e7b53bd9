package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	flagLogLevel   string
	flagPolicyFile string
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Proctoring violation and attempts service",
	Long: `server runs the realtime proctoring backend: it ingests classified
detection events, debounces them, charges each student's attempts budget,
broadcasts alerts to proctors and disconnects students who run out.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env (non-fatal if missing in production)
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagPolicyFile, "policy", "", "Enforcement policy YAML (env: POLICY_FILE)")
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("seb_proctoring %s\n", version))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
