package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry <processing-id>",
	Short: "Queues a failed or cancelled job for another run",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newAPIClient(serverURL)

		var resp struct {
			Message string `json:"message"`
		}
		if err := client.do(http.MethodPost, "/repositories/"+url.PathEscape(args[0])+"/retry", nil, &resp); err != nil {
			return err
		}

		fmt.Println(resp.Message)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <processing-id>",
	Short: "Cancels a pending, retrying, or processing job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newAPIClient(serverURL)

		var resp struct {
			Message string `json:"message"`
		}
		if err := client.do(http.MethodPost, "/repositories/"+url.PathEscape(args[0])+"/cancel", nil, &resp); err != nil {
			return err
		}

		fmt.Println(resp.Message)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(cancelCmd)
}
