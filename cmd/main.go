package main

import (
	"os"

	"github.com/frain-dev/tether/cmd/agent"
	"github.com/frain-dev/tether/cmd/version"
	"github.com/frain-dev/tether/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	err := os.Setenv("TZ", "") // Use UTC by default :)
	if err != nil {
		log.Fatal("failed to set env - ", err)
	}

	cmd := &cobra.Command{
		Use:   "tether",
		Short: "Resilient real-time connection orchestration",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			return config.LoadConfig(cfgPath)
		},
	}

	var configFile string
	cmd.PersistentFlags().StringVar(&configFile, "config", "./tether.json", "Configuration file for tether")

	cmd.AddCommand(version.AddVersionCommand())
	cmd.AddCommand(agent.AddAgentCommand())

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
