package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencollab/litemono/internal/monorepo"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <object-id>",
		Short: "Describe an object's change graph for external rendering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := monorepo.Open(dataDir, monorepo.Options{Logger: logger()})
			if err != nil {
				return err
			}
			desc, err := m.Engine().DescribeGraph(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(desc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
