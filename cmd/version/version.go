package version

import (
	"fmt"

	"github.com/frain-dev/tether"
	"github.com/spf13/cobra"
)

func AddVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(tether.Version)
		},
	}
}
