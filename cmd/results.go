package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/storage/jsonl"
)

func newResultsCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Prints stored observations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			store, err := jsonl.New(jsonl.Config{Path: e.cfg.Storage.DataFile}, e.logger.Named("store"))
			if err != nil {
				return fmt.Errorf("open results: %w", err)
			}
			rows, err := store.Scan(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("scan results: %w", err)
			}
			if asJSON {
				return writeResultsJSON(cmd.OutOrStdout(), rows)
			}
			return writeResultsTable(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to print (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print a JSON array instead of a table")
	return cmd
}

func writeResultsJSON(w io.Writer, rows []plates.Observation) error {
	if rows == nil {
		rows = []plates.Observation{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

func writeResultsTable(w io.Writer, rows []plates.Observation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATE\tSTATUS\tCHECKED AT\tNOTE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Code, r.Status, r.CheckedAt.Format(time.RFC3339), r.Note)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
