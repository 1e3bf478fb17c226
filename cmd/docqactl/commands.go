package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"docqa/internal/models"

	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var (
		title string
		wait  bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for ingestion",
		Long: `Upload a text, markdown, PDF or Word file. Ingestion runs in the background;
use --wait to block until it finishes.

Examples:
  docqactl upload notes.md
  docqactl upload --title "Q3 report" --wait report.docx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL, userID)

			var doc models.Document
			if err := client.upload("/api/documents/upload", args[0], title, &doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s)\n", doc.ID, doc.Title)

			if !wait {
				return nil
			}
			status, err := waitForIngestion(client, doc.ID, time.Second)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			if status.DocumentStatus == models.StatusFailed {
				return fmt.Errorf("ingestion of %s failed", doc.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "document title (defaults to the file name)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for ingestion to finish")
	return cmd
}

func newAskCmd() *cobra.Command {
	var documentIDs []string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the ingested documents",
		Long: `Ask a question. Restrict the search to specific documents with --doc.

Examples:
  docqactl ask "What is the refund policy?"
  docqactl ask --doc 2Vx... --doc 2Vy... "Who signed the contract?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL, userID)

			var session models.QASession
			err := client.postJSON("/api/qa/ask", map[string]any{
				"question":     strings.Join(args, " "),
				"document_ids": documentIDs,
			}, &session)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, session.Answer)
			fmt.Fprintf(out, "\nconfidence: %.2f\n", session.Confidence)
			if len(session.RelevantDocumentIDs) > 0 {
				fmt.Fprintf(out, "sources:    %s\n", strings.Join(session.RelevantDocumentIDs, ", "))
			}
			if session.Degraded {
				fmt.Fprintln(out, "warning:    the provider was unavailable, this answer may be unreliable")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&documentIDs, "doc", nil, "restrict to these document ids")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's ingestion status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL, userID)

			var status models.IngestionStatus
			if err := client.getJSON("/api/documents/"+url.PathEscape(args[0])+"/status", &status); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), &status)
			return nil
		},
	}
}

func newJobsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent ingestion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL, userID)

			var resp struct {
				Jobs []*models.IngestionJob `json:"jobs"`
			}
			if err := client.getJSON(fmt.Sprintf("/api/ingestion/jobs?limit=%d", limit), &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tDOCUMENT\tSTATUS\tPROGRESS\tCREATED\tERROR")
			for _, job := range resp.Jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
					job.ID, job.DocumentID, job.Status, job.Progress,
					job.CreatedAt.Format(time.RFC3339), job.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs to show")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your previous questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL, userID)

			var resp struct {
				Sessions   []*models.QASession `json:"sessions"`
				Pagination models.Pagination   `json:"pagination"`
			}
			if err := client.getJSON(fmt.Sprintf("/api/qa/history?page=%d&limit=%d", page, limit), &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tASKED\tCONFIDENCE\tQUESTION")
			for _, s := range resp.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", s.ID, s.CreatedAt.Format(time.RFC3339), s.Confidence, s.Question)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			p := resp.Pagination
			fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d total)\n", p.Page, p.Pages, p.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "sessions per page")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check docqa server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL, userID)

			var resp struct {
				Status string `json:"status"`
			}
			if err := client.getJSON("/api/health", &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server %s: %s\n", serverURL, resp.Status)
			return nil
		},
	}
}

// waitForIngestion polls the status endpoint until ingestion is no longer running.
func waitForIngestion(client *apiClient, documentID string, interval time.Duration) (*models.IngestionStatus, error) {
	path := "/api/documents/" + url.PathEscape(documentID) + "/status"
	for {
		var status models.IngestionStatus
		if err := client.getJSON(path, &status); err != nil {
			return nil, err
		}
		if status.Done() && status.DocumentStatus.Terminal() {
			return &status, nil
		}
		time.Sleep(interval)
	}
}

func printStatus(out io.Writer, status *models.IngestionStatus) {
	fmt.Fprintf(out, "document %s: %s\n", status.DocumentID, status.DocumentStatus)
	if status.Job == nil {
		fmt.Fprintln(out, "no ingestion job yet")
		return
	}
	fmt.Fprintf(out, "job %s: %s (%d%%)\n", status.Job.ID, status.Job.Status, status.Job.Progress)
	if status.Job.Error != "" {
		fmt.Fprintf(out, "error: %s\n", status.Job.Error)
	}
}
