package commands

import (
	"github.com/spf13/cobra"

	"github.com/stagecraft-robotics/lockstep/src/config"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for lockstep
var RootCmd = &cobra.Command{
	Use:              "lockstep",
	Short:            "lockstep peripheral bus host",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(
		NewRunCmd(),
		VersionCmd,
	)
}
