package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/profilestore/internal/duckdb"
)

// NewDuckDBCmd builds the `profilestore duckdb` command group: ad hoc
// aggregate queries over the row-group Parquet files the ingester and DAL
// persist (spec §3), run directly against read_parquet() with DuckDB's
// embedded engine rather than through the query RPC. This is an operator
// escape hatch for questions the symbolized query path doesn't answer
// (row counts and summed sample value per metric) and deliberately never
// selects the "stacktrace" column: that column holds serialized sample
// locations as a LIST<BLOB>, expensive to materialize and meaningless
// without the symbolizer, so aggregate-only queries are all this
// subcommand exposes.
func NewDuckDBCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "duckdb",
		Short: "Run ad hoc aggregate queries over ingested row-group Parquet files",
	}
	root.AddCommand(newDuckDBQueryCmd())
	return root
}

func newDuckDBQueryCmd() *cobra.Command {
	var (
		glob       string
		name       string
		sampleType string
		limit      int
		explain    bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Aggregate row counts and total sample value by metric name over a set of Parquet files",
		Long: `query scans the row-group Parquet files matching --glob with
read_parquet(), optionally filtered by --name/--sample-type, and reports
row counts and summed sample value grouped by (name, sample_type,
sample_unit). It never selects the stacktrace column, so it is safe to
run against arbitrarily large row-groups without paying
symbolizer-sized memory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := duckdb.OpenDB("")
			if err != nil {
				return fmt.Errorf("open duckdb: %w", err)
			}
			defer db.Close() // nolint:errcheck

			table := fmt.Sprintf("read_parquet('%s')", glob)
			b := duckdb.NewQueryBuilder(table).
				Select("name", "sample_type", "sample_unit", "COUNT(*) as rows", "SUM(value) as total_value").
				Eq("name", name).
				Eq("sample_type", sampleType).
				GroupBy("name", "sample_type", "sample_unit").
				OrderBy("-total_value").
				Limit(limit)

			query, queryArgs, err := b.Build()
			if err != nil {
				return fmt.Errorf("build query: %w", err)
			}

			if explain {
				cmd.PrintErrln(duckdb.InterpolateQuery(query, queryArgs))
			}

			rows, err := db.QueryContext(cmd.Context(), query, queryArgs...)
			if err != nil {
				return fmt.Errorf("run query: %w", err)
			}
			defer rows.Close() // nolint:errcheck

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSAMPLE_TYPE\tSAMPLE_UNIT\tROWS\tTOTAL_VALUE")
			for rows.Next() {
				var (
					rowName     string
					rowSampType string
					rowSampUnit string
					rowCount    int64
					totalValue  int64
				)
				if err := rows.Scan(&rowName, &rowSampType, &rowSampUnit, &rowCount, &totalValue); err != nil {
					return fmt.Errorf("scan row: %w", err)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", rowName, rowSampType, rowSampUnit, rowCount, totalValue)
			}
			if err := rows.Err(); err != nil {
				return fmt.Errorf("iterate rows: %w", err)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&glob, "glob", "", "glob pattern over persisted Parquet row-group files (required)")
	cmd.Flags().StringVar(&name, "name", "", "restrict to a single metric name (empty matches all)")
	cmd.Flags().StringVar(&sampleType, "sample-type", "", "restrict to a single sample_type (empty matches all)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of grouped rows to print")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the interpolated SQL to stderr before running it")
	_ = cmd.MarkFlagRequired("glob")

	return cmd
}
