package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/documents"
	"github.com/sells-group/evidence-cli/internal/model"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage project documents (tier 1 evidence)",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents in a project",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		project, _ := cmd.Flags().GetString("project")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		docs, err := st.ListDocuments(ctx, project)
		if err != nil {
			return eris.Wrap(err, "documents list")
		}
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No documents found.")
			return nil
		}
		formatDocuments(os.Stdout, docs)
		return nil
	},
}

var documentsAddCmd = &cobra.Command{
	Use:   "add <file>...",
	Short: "Extract and store documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		project, _ := cmd.Flags().GetString("project")
		user, _ := cmd.Flags().GetString("user")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ing, err := newIngestor(st)
		if err != nil {
			return err
		}

		var added []model.Document
		for _, path := range args {
			doc, err := ing.Ingest(ctx, documents.Upload{ProjectID: project, UserID: user, Path: path})
			if err != nil {
				return eris.Wrapf(err, "documents add %s", path)
			}
			added = append(added, *doc)
		}
		formatDocuments(os.Stdout, added)
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and its pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteDocument(ctx, args[0]); err != nil {
			return eris.Wrap(err, "documents delete")
		}
		fmt.Fprintf(os.Stderr, "Deleted %s\n", args[0])
		return nil
	},
}

var documentsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search a project's documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		project, _ := cmd.Flags().GetString("project")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hits, err := st.SearchDocuments(ctx, project, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "documents search")
		}
		if len(hits) == 0 {
			fmt.Fprintln(os.Stderr, "No matches.")
			return nil
		}
		formatHits(os.Stdout, hits)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{documentsListCmd, documentsAddCmd, documentsSearchCmd} {
		c.Flags().String("project", "", "project id (required)")
		_ = c.MarkFlagRequired("project")
	}
	documentsAddCmd.Flags().String("user", "", "uploading user id")
	documentsSearchCmd.Flags().Int("limit", 10, "max matches")

	documentsCmd.AddCommand(documentsListCmd, documentsAddCmd, documentsDeleteCmd, documentsSearchCmd)
	rootCmd.AddCommand(documentsCmd)
}

func formatDocuments(out io.Writer, docs []model.Document) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILENAME\tTYPE\tPAGES\tSIZE\tCREATED")
	for _, d := range docs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			d.ID, truncate(d.Filename, 40), d.FileType, d.PagesCount, d.SizeBytes, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func formatHits(out io.Writer, hits []model.DocumentHit) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tDOCUMENT\tLOCATION\tSNIPPET")
	for _, h := range hits {
		_, _ = fmt.Fprintf(w, "%.2f\t%s\t%s\t%s\n",
			h.Rank, truncate(h.Document.Filename, 30), pageLabel(h.Page), truncate(h.Snippet, 60))
	}
	_ = w.Flush()
}

func pageLabel(p model.DocumentPage) string {
	switch {
	case p.Row != nil:
		return fmt.Sprintf("%s row %d", p.Sheet, *p.Row)
	case p.Page != nil:
		return fmt.Sprintf("page %d", *p.Page)
	}
	return fmt.Sprintf("chunk %d", p.Number)
}
