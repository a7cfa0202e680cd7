package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

var enqueuePriority string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <project-id> <repository-url>",
	Short: "Enqueues a repository for embedding",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newAPIClient(serverURL)

		path := "/repositories"
		if enqueuePriority != "" {
			path += "?priority=" + url.QueryEscape(enqueuePriority)
		}

		var resp struct {
			Message      string `json:"message"`
			ProcessingID string `json:"processingId"`
			Status       string `json:"status"`
		}
		err := client.do(http.MethodPost, path, map[string]string{
			"projectId":     args[0],
			"repositoryUrl": args[1],
		}, &resp)
		if err != nil {
			return err
		}

		fmt.Printf("%s\nprocessing id: %s\nstatus: %s\n", resp.Message, resp.ProcessingID, resp.Status)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	enqueueCmd.Flags().StringVarP(&enqueuePriority, "priority", "p", "", "Job priority (low, normal, high)")
	rootCmd.AddCommand(enqueueCmd)
}
