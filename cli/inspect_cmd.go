package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dot5enko/mvstore/io"
	"github.com/dot5enko/mvstore/paged"
	"github.com/dot5enko/mvstore/table"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var rows int
	var showPages bool
	var showStats bool

	cmd := &cobra.Command{
		Use:   "inspect <segment-file>",
		Short: "Print header, schema and page statistics of a segment file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			store, err := io.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			info, err := paged.Inspect(store)
			if err != nil {
				return err
			}

			stored, raw := info.StoredBytes()

			printHeader(w, "segment %s", info.Path)
			printKV(w, "uid", info.Header.Uid)
			printKV(w, "version", info.Header.Version)
			printKV(w, "file size", info.FileSize)
			printKV(w, "rows", info.Rows)
			printKV(w, "pages", len(info.Pages))
			printKV(w, "page rows", info.Header.PageRows)
			printKV(w, "modified", store.ModificationTime().Format("2006-01-02 15:04:05"))
			if raw > 0 {
				printKV(w, "compression", fmt.Sprintf("%d -> %d bytes (%.1f%%)", raw, stored, float64(stored)*100/float64(raw)))
			}

			printHeader(w, "schema %s", info.Schema.Name)
			for idx, col := range info.Schema.Columns {
				fmt.Fprintf(w, "  #%-3d %-24s %s\n", idx, col.Name, col.Type)
			}

			if showPages {
				printHeader(w, "pages")
				for idx, p := range info.Pages {
					fmt.Fprintf(w, "  #%-5d offset=%-10d rows=%-6d stored=%-8d raw=%-8d %s\n", idx, p.Offset, p.Rows, p.StoredSize, p.RawSize, p.Codec)
				}
			}

			if rows <= 0 && !showStats {
				return nil
			}

			segment, err := paged.OpenSegment(store, paged.SegmentOptions{Logger: opts.logger})
			if err != nil {
				return err
			}

			if showStats {
				stats, err := table.Stats(segment)
				if err != nil {
					return err
				}

				printHeader(w, "column stats")
				for _, st := range stats {
					fmt.Fprintf(w, "  %-24s values=%-8d nulls=%-8d min=%v max=%v\n", st.Column.Name, st.Values, st.Nulls, st.Min, st.Max)
				}
			}

			if rows <= 0 {
				return nil
			}

			printHeader(w, "rows")
			for i := 0; i < min(rows, segment.RowCount()); i++ {
				row, err := segment.Row(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  %v\n", row)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&rows, "rows", "n", 0, "print the first n rows")
	cmd.Flags().BoolVar(&showPages, "pages", false, "print the page directory")
	cmd.Flags().BoolVar(&showStats, "stats", false, "scan the segment and print per column bounds")

	return cmd
}
