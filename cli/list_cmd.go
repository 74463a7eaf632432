package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List materialized views with their freshness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			m, err := opts.manager()
			if err != nil {
				return err
			}
			defer m.Close()

			entries, err := m.Catalog().List(cmd.Context())
			if err != nil {
				return err
			}

			printHeader(w, "%d materialized views in %s (%s)", len(entries), m.Catalog().Root(), m.Policy())

			for _, e := range entries {
				state, err := m.Staleness(e.Name)
				if err != nil {
					return err
				}

				status := okColor.Sprint("fresh")
				switch {
				case state.Expired:
					status = errColor.Sprint("expired")
				case state.Stale:
					status = warnColor.Sprint("stale")
				}

				fmt.Fprintf(w, "  %-32s %-8s updated %s (%s ago) segments=%d\n",
					e.Name,
					status,
					e.LastUpdate.Format(time.RFC3339),
					state.Age.Truncate(time.Second),
					len(e.Segments),
				)
			}

			return nil
		},
	}
}
