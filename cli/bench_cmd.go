package cli

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/dot5enko/mvstore/aggregate"
	"github.com/dot5enko/mvstore/schema"
)

var benchSchema = schema.New("bench",
	schema.Column("key", schema.Int64FieldType),
	schema.Column("value", schema.Float64FieldType),
	schema.Column("at", schema.TimestampFieldType),
)

func testCycles(w io.Writer, n int, label string, cb func() error) error {
	before := time.Now()

	for i := range n {
		if err := cb(); err != nil {
			return fmt.Errorf("%s, cycle %d: %w", label, i, err)
		}
	}

	after := time.Since(before)

	perCycle := after.Nanoseconds() / int64(max(n, 1))
	fmt.Fprintf(w, "  %-22s %8d ns/op  total %s\n", label, perCycle, after)

	return nil
}

func newBenchCmd(opts *rootOptions) *cobra.Command {
	var rows int
	var threshold int
	var seed int64

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure append and random read speed of a spilling aggregate table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			gen := rand.New(rand.NewSource(seed))

			tableThreshold := opts.cfg.Threshold()
			if cmd.Flags().Changed("threshold") {
				tableThreshold = aggregate.Threshold{Rows: threshold}
			}

			tbl, err := aggregate.New(benchSchema, aggregate.Options{
				Threshold:    tableThreshold,
				PageRows:     opts.cfg.Storage.PageRows,
				CachePages:   opts.cfg.Storage.CachePages,
				StoreFactory: aggregate.TempStoreFactory(opts.cfg.SpillDir()),
				Logger:       opts.logger,
			})
			if err != nil {
				return err
			}
			defer tbl.Close()

			printHeader(w, "bench %d rows, threshold %s", rows, tableThreshold)

			start := time.Unix(1_700_000_000, 0).UTC()
			appended := 0

			err = testCycles(w, rows, "append", func() error {
				row := []any{
					gen.Int63n(50000),
					gen.Float64() * 1000,
					start.Add(time.Duration(appended) * time.Second),
				}
				appended++
				return tbl.AppendRow(row)
			})
			if err != nil {
				return err
			}

			if err := tbl.Complete(); err != nil {
				return err
			}

			if rows > 0 {
				err = testCycles(w, rows, "random read", func() error {
					_, readErr := tbl.Row(gen.Intn(rows))
					return readErr
				})
				if err != nil {
					return err
				}

				next := 0
				err = testCycles(w, rows, "sequential read", func() error {
					_, readErr := tbl.Row(next)
					next++
					return readErr
				})
				if err != nil {
					return err
				}
			}

			printKV(w, "spills", tbl.Spills())
			printKV(w, "spilled rows", tbl.SpilledRows())
			printKV(w, "memory rows", tbl.MemoryRows())

			return nil
		},
	}

	cmd.Flags().IntVarP(&rows, "rows", "n", 100_000, "rows to append")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "row threshold, defaults to aggregate.threshold_rows")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")

	return cmd
}
