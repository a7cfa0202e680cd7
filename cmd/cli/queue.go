package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/repo-embedder/internal/core"
)

var (
	queueJSON  bool
	queuePage  int
	queueLimit int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Shows queue statistics and recent jobs",
	RunE: func(_ *cobra.Command, _ []string) error {
		client := newAPIClient(serverURL)

		var resp struct {
			Stats core.QueueStats      `json:"stats"`
			Jobs  []*core.EmbeddingJob `json:"jobs"`
		}
		path := fmt.Sprintf("/queue/status?page=%d&limit=%d", queuePage, queueLimit)
		if err := client.do(http.MethodGet, path, nil, &resp); err != nil {
			return err
		}

		if queueJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(resp)
		}

		fmt.Printf("pending: %d  processing: %d  retrying: %d  completed: %d  failed: %d  cancelled: %d\n\n",
			resp.Stats.Pending,
			resp.Stats.Processing,
			resp.Stats.Retrying,
			resp.Stats.Completed,
			resp.Stats.Failed,
			resp.Stats.Cancelled,
		)

		if len(resp.Jobs) == 0 {
			fmt.Println("No jobs in the queue.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PROCESSING ID\tPROJECT\tSTATUS\tPRIORITY\tATTEMPTS\tCREATED")
		for _, job := range resp.Jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\n",
				job.ProcessingID,
				job.ProjectID,
				job.Status,
				job.Priority,
				job.Attempts,
				job.MaxAttempts,
				job.CreatedAt.Format(time.RFC822),
			)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	queueCmd.Flags().BoolVar(&queueJSON, "json", false, "Output queue status as JSON")
	queueCmd.Flags().IntVar(&queuePage, "page", 1, "Page of jobs to show")
	queueCmd.Flags().IntVar(&queueLimit, "limit", 20, "Jobs per page")
	rootCmd.AddCommand(queueCmd)
}
