package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/sevigo/repo-embedder/internal/core"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <processing-id>",
	Short: "Shows the status of one embedding job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newAPIClient(serverURL)

		var job core.EmbeddingJob
		if err := client.do(http.MethodGet, "/repositories/status/"+url.PathEscape(args[0]), nil, &job); err != nil {
			return err
		}

		if statusJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(&job)
		}

		fmt.Printf("project:    %s\n", job.ProjectID)
		fmt.Printf("repository: %s\n", job.RepositoryURL)
		fmt.Printf("status:     %s\n", job.Status)
		fmt.Printf("priority:   %d\n", job.Priority)
		fmt.Printf("attempts:   %d/%d\n", job.Attempts, job.MaxAttempts)
		if job.ScheduledFor != nil {
			fmt.Printf("scheduled:  %s\n", job.ScheduledFor.Format("2006-01-02 15:04:05 MST"))
		}
		if job.LastError != nil {
			fmt.Printf("last error: %s\n", *job.LastError)
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}
