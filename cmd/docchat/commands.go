package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Queue a question against your document collection",
	Long: `Queue a question against your document collection.

The question joins the user's message window; the composed answer is
delivered through the configured transport once the window closes.

Examples:
  docchat ask --user alice "what does the contract say about renewal?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userFlag == "" {
			return fmt.Errorf("--user is required")
		}
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/messages", map[string]string{
			"user_id": userFlag,
			"text":    question,
		})
		if err != nil {
			return err
		}
		var out struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		printSuccess("Question queued; the answer will be delivered when the message window closes")
		return nil
	},
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List your ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		if userFlag == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/documents?user_id="+userFlag)
		if err != nil {
			return err
		}
		var out struct {
			Documents []struct {
				FileName   string `json:"file_name"`
				Status     string `json:"status"`
				Error      string `json:"error"`
				ChunkCount int    `json:"chunk_count"`
			} `json:"documents"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if len(out.Documents) == 0 {
			fmt.Println("No documents ingested yet.")
			return nil
		}
		for _, d := range out.Documents {
			switch d.Status {
			case "failed":
				printError("%s (%s)", d.FileName, d.Error)
			default:
				fmt.Printf("  %s — %s, %d sections\n", colorize(colorBold, d.FileName), d.Status, d.ChunkCount)
			}
		}
		return nil
	},
}

var documentsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Upload a document for ingestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userFlag == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.upload(cmd.Context(), "/documents", userFlag, args[0])
		if err != nil {
			return err
		}
		var out struct {
			Status   string `json:"status"`
			FileName string `json:"file_name"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		printSuccess("Queued %s for ingestion", out.FileName)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&userFlag, "user", "", "user whose collection to query")
	documentsCmd.PersistentFlags().StringVar(&userFlag, "user", "", "user whose documents to manage")
	documentsCmd.AddCommand(documentsAddCmd)
}
