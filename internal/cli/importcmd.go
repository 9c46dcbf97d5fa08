package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencollab/litemono/internal/issue"
	"github.com/opencollab/litemono/internal/monorepo"
)

func newImportCmd() *cobra.Command {
	var (
		repoName    string
		poolSize    int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "import <issues-dir>",
		Short: "Import downloaded issues into the monorepo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger()

			var repo issue.RepoName
			if repoName != "" {
				var err error
				repo, err = issue.ParseRepoName(repoName)
				if err != nil {
					return err
				}
			}

			issues, err := issue.LoadDir(args[0])
			if err != nil {
				return err
			}
			log.Info("loaded issues", "count", len(issues), "dir", args[0])

			m, err := monorepo.Open(dataDir, monorepo.Options{
				Repo:        repo,
				PoolSize:    poolSize,
				Concurrency: concurrency,
				Logger:      log,
			})
			if err != nil {
				return err
			}

			report, err := m.ImportAll(cmd.Context(), issues)
			for _, p := range report.Problems {
				log.Warn("skipped", "reason", p)
			}
			fmt.Printf("imported: %d succeeded, %d skipped, %d failed\n",
				report.Succeeded, report.Skipped, report.Failed)
			return err
		},
	}

	cmd.Flags().StringVar(&repoName, "repo", "", "source repository as <owner>/<name> (required on first import)")
	cmd.Flags().IntVar(&poolSize, "peers", 0, "synthetic peer pool size (fixed at first import)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel issue imports")
	return cmd
}
