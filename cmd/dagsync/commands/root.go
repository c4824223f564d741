package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for dagsync
var RootCmd = &cobra.Command{
	Use:              "dagsync",
	Short:            "gossip an event DAG between peers",
	TraverseChildren: true,
}
