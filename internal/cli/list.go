package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencollab/litemono/internal/monorepo"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported object ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := monorepo.Open(dataDir, monorepo.Options{Logger: logger()})
			if err != nil {
				return err
			}
			ids, err := m.ListObjects()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			fmt.Printf("%d objects\n", len(ids))
			return nil
		},
	}
}
