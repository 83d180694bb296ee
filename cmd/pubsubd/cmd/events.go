package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nfrund/pubsubd/internal/events"
)

var eventsOutputFormat string

// eventsCmd lists the broker lifecycle events published on the internal bus.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the broker lifecycle events",
	Long: `List every event the broker publishes on its internal event bus.

Output formats:
  table - Human-readable table format (default)
  json  - Machine-readable JSON format`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		defs := events.All()

		switch eventsOutputFormat {
		case "json":
			type entry struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			list := make([]entry, 0, len(defs))
			for _, d := range defs {
				list = append(list, entry{Name: d.Name(), Description: d.Description()})
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		case "table", "":
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			fmt.Fprintln(w, "----\t-----------")
			for _, d := range defs {
				fmt.Fprintf(w, "%s\t%s\n", d.Name(), d.Description())
			}
			return w.Flush()
		default:
			return fmt.Errorf("unknown format %q (want table or json)", eventsOutputFormat)
		}
	},
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsOutputFormat, "format", "f", "table", "Output format (table, json)")
	rootCmd.AddCommand(eventsCmd)
}
