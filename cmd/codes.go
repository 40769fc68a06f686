package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alymdu/shortest-plates/internal/plates"
)

func newCodesCmd() *cobra.Command {
	var count bool

	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Prints every plate code in probe order",
		Args:  cobra.NoArgs,
		// Listing the keyspace needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := bufio.NewWriter(cmd.OutOrStdout())
			if count {
				fmt.Fprintln(out, plates.Total)
			} else {
				for code := range plates.Codes() {
					fmt.Fprintln(out, code)
				}
			}
			if err := out.Flush(); err != nil {
				return fmt.Errorf("write codes: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&count, "count", false, "print only the number of codes")
	return cmd
}
