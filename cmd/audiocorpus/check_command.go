package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"audiocorpus/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify external tools, directories and stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			depRows := [][]string{}
			missingRequired := 0
			for _, st := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				state := "ok"
				detail := st.Version
				if !st.Available {
					detail = st.Detail
					if st.Optional {
						state = "missing (optional)"
					} else {
						state = "missing"
						missingRequired++
					}
				}
				depRows = append(depRows, []string{st.Name, st.Command, state, detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Tool", "Command", "State", "Detail"}, depRows, nil))

			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				state := "ok"
				if !r.Passed {
					state = "failed"
				}
				rows = append(rows, []string{r.Name, state, r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "State", "Detail"}, rows, nil))

			failed := len(preflight.Failed(results))
			if failed > 0 || missingRequired > 0 {
				return errors.New(checkFailureMessage(failed, missingRequired))
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func checkFailureMessage(failedChecks, missingTools int) string {
	switch {
	case failedChecks > 0 && missingTools > 0:
		return fmt.Sprintf("%d check(s) failed, %d required tool(s) missing", failedChecks, missingTools)
	case missingTools > 0:
		return fmt.Sprintf("%d required tool(s) missing", missingTools)
	default:
		return fmt.Sprintf("%d check(s) failed", failedChecks)
	}
}
