package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ytdlhost/ytdlhost/internal/domain"
)

func init() {
	tasksCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 20, "Number of tasks to show")
	rootCmd.AddCommand(tasksCmd, statusCmd)
}

var tasksLimit int

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"ps"},
	Short:   "List recent download tasks",
	RunE:    runTasks,
}

var statusCmd = &cobra.Command{
	Use:   "status TASK_ID",
	Short: "Show one task in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runTasks(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	tasks, err := db.ListTasks(context.Background(), tasksLimit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tKEY\tCREATED\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Type, t.Status, t.KeyName, ago(t.CreatedAt), t.Title)
	}
	return w.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := db.LoadTask(context.Background(), args[0])
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%s: %w", args[0], domain.ErrTaskNotFound)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", t.ID)
	fmt.Fprintf(w, "Type:\t%s\n", t.Type)
	fmt.Fprintf(w, "Status:\t%s\n", t.Status)
	fmt.Fprintf(w, "URL:\t%s\n", t.URL)
	fmt.Fprintf(w, "Key:\t%s\n", t.KeyName)
	fmt.Fprintf(w, "Created:\t%s\n", ago(t.CreatedAt))
	if t.Title != "" {
		fmt.Fprintf(w, "Title:\t%s\n", t.Title)
	}
	if t.IsTerminal() {
		fmt.Fprintf(w, "Elapsed:\t%s\n", t.Elapsed().Round(time.Millisecond))
	}
	if t.ResultFile != "" {
		size := "-"
		if info, err := os.Stat(t.ResultFile); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(w, "File:\t%s (%s)\n", filepath.Base(t.ResultFile), size)
	}
	if t.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", t.Error)
	}
	return w.Flush()
}
