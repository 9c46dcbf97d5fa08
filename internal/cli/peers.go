package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencollab/litemono/internal/monorepo"
)

func newPeersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List the synthetic peer pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := monorepo.Open(dataDir, monorepo.Options{Logger: logger()})
			if err != nil {
				return err
			}
			for _, id := range m.Pool.Identities() {
				fmt.Printf("%2d  %-16s %s\n", id.Index, id.Petname, id.DID)
			}
			return nil
		},
	}
}
