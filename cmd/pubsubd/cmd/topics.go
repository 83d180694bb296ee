package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/pubsubd/internal/topics"
)

var topicsHTTPAddr string

// topicsCmd lists live topics from a running broker's admin API.
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List topics on a running broker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, "http://"+topicsHTTPAddr+"/api/topics", nil)
		if err != nil {
			return err
		}
		httpClient := &http.Client{Timeout: 5 * time.Second}
		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("query broker: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("query broker: unexpected status %s", resp.Status)
		}

		var list []topics.TopicStats
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			return fmt.Errorf("decode topics: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TOPIC\tSUBSCRIBERS")
		for _, t := range list {
			fmt.Fprintf(w, "%s\t%d\n", t.Name, t.Subscribers)
		}
		return w.Flush()
	},
}

func init() {
	topicsCmd.Flags().StringVar(&topicsHTTPAddr, "http", "localhost:7001", "broker admin HTTP address")
	rootCmd.AddCommand(topicsCmd)
}
