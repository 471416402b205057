package main

import (
	"fmt"
	"sort"

	"github.com/kasuganosora/partadvisor/pkg/filter"
	"github.com/kasuganosora/partadvisor/pkg/interval"
	"github.com/spf13/cobra"
)

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <filter>",
		Short: "Print the value interval of every column a filter constrains.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := filter.Parse(args[0])
			if err != nil {
				return err
			}
			intervals, err := interval.Resolve(expr)
			if err != nil {
				return err
			}

			columns := make([]string, 0, len(intervals))
			for col := range intervals {
				columns = append(columns, col)
			}
			sort.Strings(columns)
			for _, col := range columns {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", col, intervals[col])
			}
			return nil
		},
	}
}
