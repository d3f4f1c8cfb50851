package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metroad/leadops/internal/fetcher"
	"github.com/metroad/leadops/internal/ingest"
	"github.com/metroad/leadops/internal/reconcile"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load business-registry leads",
	Long:  "Commands for loading leads from the LOCALDATA open API or its CSV dumps.",
}

// -- ingest api --

var (
	ingestServiceIDs []string
	ingestDryRun     bool
)

var ingestAPICmd = &cobra.Command{
	Use:   "api",
	Short: "Page through LOCALDATA services and save new leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		services := ingestServiceIDs
		if len(services) == 0 {
			services = cfg.LocalData.ServiceIDs
		}
		if len(services) == 0 {
			return eris.New("no service ids: pass --service or set localdata.service_ids")
		}

		stations, err := initStations()
		if err != nil {
			return err
		}
		pipeline := newPipeline(stations)

		var rec *reconcile.Reconciler
		if !ingestDryRun {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			rec = newReconciler(st)
		}

		for _, id := range services {
			res, err := pipeline.Run(ctx, id)
			if err != nil {
				return eris.Wrapf(err, "ingest %s", id)
			}
			if err := saveIngested(ctx, rec, res); err != nil {
				return err
			}
		}
		return nil
	},
}

// -- ingest csv --

var (
	ingestCSVFile      string
	ingestCSVEncoding  string
	ingestCSVServiceID string
)

var ingestCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Import a LOCALDATA CSV dump from a file or URL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("dedup"); err != nil {
			return err
		}
		enc, err := fetcher.ParseEncoding(ingestCSVEncoding)
		if err != nil {
			return err
		}
		stations, err := initStations()
		if err != nil {
			return err
		}

		src, err := fetcher.Open(ctx, ingestCSVFile, nil)
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck

		res, err := ingest.ImportCSV(ctx, src, ingest.CSVOptions{
			Encoding:           enc,
			ServiceID:          ingestCSVServiceID,
			OnlyOperating:      cfg.LocalData.OnlyOperating,
			MaxStationDistance: cfg.Geo.MaxStationDistanceM,
			Stations:           stations,
		})
		if err != nil {
			return eris.Wrap(err, "ingest csv")
		}

		var rec *reconcile.Reconciler
		if !ingestDryRun {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			rec = newReconciler(st)
		}
		return saveIngested(ctx, rec, res)
	},
}

// saveIngested stores the new leads of res and prints a summary. A nil
// reconciler means dry run.
func saveIngested(ctx context.Context, rec *reconcile.Reconciler, res *ingest.Result) error {
	saved := &reconcile.SaveResult{}
	if rec != nil {
		var err error
		saved, err = rec.SaveNew(ctx, res.Leads)
		if err != nil {
			return eris.Wrapf(err, "save %s", res.ServiceID)
		}
	}

	zap.L().Info("ingest complete",
		zap.String("service_id", res.ServiceID),
		zap.Int("fetched", res.Fetched),
		zap.Int("leads", len(res.Leads)),
		zap.Int("inserted", saved.Inserted),
		zap.Bool("dry_run", rec == nil),
	)
	formatIngestSummary(os.Stdout, res, saved)
	return nil
}

// formatIngestSummary writes the counters of one ingestion run to w.
func formatIngestSummary(out io.Writer, res *ingest.Result, saved *reconcile.SaveResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "SERVICE\t%s\n", res.ServiceID)
	_, _ = fmt.Fprintf(w, "PAGES\t%d\n", res.Pages)
	_, _ = fmt.Fprintf(w, "FETCHED\t%d\n", res.Fetched)
	_, _ = fmt.Fprintf(w, "INVALID\t%d\n", res.Invalid)
	_, _ = fmt.Fprintf(w, "CLOSED\t%d\n", res.Closed)
	_, _ = fmt.Fprintf(w, "SESSION DUPLICATES\t%d\n", res.Duplicates)
	_, _ = fmt.Fprintf(w, "INSERTED\t%d\n", saved.Inserted)
	_, _ = fmt.Fprintf(w, "ALREADY STORED\t%d\n", saved.Skipped)

	classes := make([]string, 0, len(res.Proximity))
	for c := range res.Proximity {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", c, res.Proximity[c])
	}
	_ = w.Flush()
}

func init() {
	ingestCmd.PersistentFlags().BoolVar(&ingestDryRun, "dry-run", false, "convert and deduplicate without saving")

	ingestAPICmd.Flags().StringSliceVar(&ingestServiceIDs, "service", nil, "LOCALDATA service id (repeatable, default from config)")

	ingestCSVCmd.Flags().StringVar(&ingestCSVFile, "file", "", "path or URL of the CSV dump (required)")
	ingestCSVCmd.Flags().StringVar(&ingestCSVEncoding, "encoding", "auto", "CSV encoding: auto, utf-8 or euc-kr")
	ingestCSVCmd.Flags().StringVar(&ingestCSVServiceID, "service-id", "", "service id for rows that lack one")
	_ = ingestCSVCmd.MarkFlagRequired("file")

	ingestCmd.AddCommand(ingestAPICmd, ingestCSVCmd)
	rootCmd.AddCommand(ingestCmd)
}
