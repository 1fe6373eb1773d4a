package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rotisserie/eris"

	"github.com/sells-group/clinical-extract/internal/model"
	"github.com/sells-group/clinical-extract/internal/store"
)

var (
	runsStatus   string
	runsDocument string
	runsLimit    int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted extraction runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extraction runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one extraction run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status")
	runsListCmd.Flags().StringVar(&runsDocument, "document", "", "filter by document id")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 50, "maximum runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func openStore(cmd *cobra.Command) (store.Store, error) {
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("store.driver is off; configure sqlite or postgres to track runs")
	}
	return st, nil
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
		Status:     model.RunStatus(runsStatus),
		DocumentID: runsDocument,
		Limit:      runsLimit,
	})
	if err != nil {
		return err
	}

	return formatRunsList(cmd.OutOrStdout(), runs)
}

func formatRunsList(out io.Writer, runs []model.Run) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOCUMENT\tPROVIDER\tSTATUS\tRECORDS\tCREATED")
	for _, run := range runs {
		records := "-"
		if run.Result != nil {
			records = fmt.Sprintf("%d", run.Result.TotalRecords)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.DocumentID, run.Provider, run.Status, records,
			run.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(cmd.Context(), strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode run")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
