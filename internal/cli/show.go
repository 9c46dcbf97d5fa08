package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencollab/litemono/internal/monorepo"
	"github.com/opencollab/litemono/internal/retrieve"
)

func newShowCmd() *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "show <object-id>",
		Short: "Print an object's materialized state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger()

			m, err := monorepo.Open(dataDir, monorepo.Options{Logger: log})
			if err != nil {
				return err
			}

			var r retrieve.Retriever = m.Engine()
			if !noCache {
				cache, err := retrieve.OpenCache(m.Engine(), retrieve.CacheOptions{
					Path:   m.CachePath(),
					Logger: log,
				})
				if err != nil {
					return err
				}
				defer cache.Close()
				r = cache
			}

			st, err := r.Retrieve(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the retrieval cache")
	return cmd
}
