package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/pgs-harmonizer/internal/duckdb"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [pgs-id]",
		Short: "List recorded harmonization runs",
		Long:  "List the harmonization runs recorded in the cache database, newest first.",
		Example: `  pgs-harmonizer runs
  pgs-harmonizer runs PGS000001`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pgsID string
			if len(args) == 1 {
				pgsID = args[0]
			}

			store, err := duckdb.Open(viper.GetString("cache.db"))
			if err != nil {
				return fmt.Errorf("opening cache: %w", err)
			}
			defer store.Close()

			runs, err := store.Runs(pgsID)
			if err != nil {
				return err
			}
			return printRuns(cmd, runs)
		},
	}
	cmd.AddCommand(newRunsClearCacheCmd())
	return cmd
}

func newRunsClearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove cached Ensembl lookups (the run ledger is kept)",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := duckdb.Open(viper.GetString("cache.db"))
			if err != nil {
				return fmt.Errorf("opening cache: %w", err)
			}
			defer store.Close()

			if err := store.ClearVariations(); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared lookup cache in %s\n", store.Path())
			return nil
		},
	}
}

func printRuns(cmd *cobra.Command, runs []*duckdb.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPGS ID\tBUILDS\tSTARTED\tVARIANTS\tPASSED\tFAILED\tCODES\tOUTPUT")
	for _, r := range runs {
		src := r.SourceBuild
		if src == "" {
			src = "NR"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s->%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID.String()[:8], r.PgsID, src, r.TargetBuild,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Summary.Total, r.Summary.Passed, r.Summary.Failed,
			formatCodes(r.Summary.ByCode), r.OutputPath)
	}
	return tw.Flush()
}

// formatCodes renders per-code counts as "5:10,-1:2", highest code first.
func formatCodes(byCode map[int]int) string {
	codes := make([]int, 0, len(byCode))
	for c := range byCode {
		codes = append(codes, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(codes)))

	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprintf("%d:%d", c, byCode[c])
	}
	return strings.Join(parts, ",")
}
