package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metroad/leadops/internal/dedup"
	"github.com/metroad/leadops/internal/lead"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Inspect and clean duplicate leads",
	Long:  "Commands for duplicate statistics, duplicate groups and removal of stored duplicates.",
}

// -- dedup stats --

var dedupThreshold float64

var dedupStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show duplicate statistics over stored leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("dedup"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		threshold := dedupThreshold
		if threshold == 0 {
			threshold = cfg.Dedup.SimilarityThreshold
		}
		stats, err := newReconciler(st).Stats(ctx, threshold)
		if err != nil {
			return eris.Wrap(err, "dedup stats")
		}

		formatStats(os.Stdout, stats)
		return nil
	},
}

// -- dedup groups --

var dedupGroupsLimit int

var dedupGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List exact duplicate groups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("dedup"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		groups, err := newReconciler(st).Groups(ctx)
		if err != nil {
			return eris.Wrap(err, "dedup groups")
		}
		if len(groups) == 0 {
			zap.L().Info("no duplicate groups found")
			return nil
		}

		if dedupGroupsLimit > 0 && len(groups) > dedupGroupsLimit {
			groups = groups[:dedupGroupsLimit]
		}
		formatGroups(os.Stdout, groups)
		return nil
	},
}

// -- dedup cleanup --

var dedupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stored duplicates, keeping the earliest record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("dedup"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := newReconciler(st).Cleanup(ctx)
		if err != nil {
			return eris.Wrap(err, "dedup cleanup")
		}

		_, _ = fmt.Fprintf(os.Stdout, "scanned %d, deleted %d in %d batches\n", res.Scanned, res.Deleted, res.Batches)
		return nil
	},
}

// formatStats writes duplicate statistics to w.
func formatStats(out io.Writer, s dedup.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "UNIQUE\t%d\n", s.Unique)
	_, _ = fmt.Fprintf(w, "DUPLICATES\t%d\n", s.Duplicates)
	_, _ = fmt.Fprintf(w, "DUPLICATE RATE\t%.1f%%\n", s.DuplicateRate*100)
	_, _ = fmt.Fprintf(w, "GROUPS\t%d\n", len(s.DuplicateGroups))
	_ = w.Flush()
}

// formatGroups writes one block per duplicate group to w.
func formatGroups(out io.Writer, groups [][]lead.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GROUP\tID\tNAME\tROAD ADDRESS\tBIZ ID\tCREATED")
	_, _ = fmt.Fprintln(w, "-----\t--\t----\t------------\t------\t-------")
	for i, g := range groups {
		for _, l := range g {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				i+1,
				l.ID,
				l.BusinessName,
				l.RoadAddress,
				l.BusinessRegistrationID,
				l.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
	}
	_ = w.Flush()
}

func init() {
	dedupStatsCmd.Flags().Float64Var(&dedupThreshold, "threshold", 0, "similarity threshold (default from config)")
	dedupGroupsCmd.Flags().IntVar(&dedupGroupsLimit, "limit", 50, "max groups to print (0 = all)")

	dedupCmd.AddCommand(dedupStatsCmd, dedupGroupsCmd, dedupCleanupCmd)
	rootCmd.AddCommand(dedupCmd)
}
