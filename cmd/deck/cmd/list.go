package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meow-stack/actiondeck/internal/presets"
	"github.com/meow-stack/actiondeck/internal/status"
	"github.com/meow-stack/actiondeck/internal/types"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the actions of the document",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var listQuiet bool

func init() {
	listCmd.Flags().BoolVarP(&listQuiet, "quiet", "q", false, "only show ids and titles")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	title := s.doc.App.Title
	if title == "" {
		title = s.doc.Path
	}
	fmt.Fprintf(out, "%s (%d action(s))\n\n", title, len(s.doc.Actions))

	// Last-run outcomes are not persisted; every action starts idle.
	rows := status.RowsFor(s.doc, map[string]types.ActionStatus{})
	opts := formatOptions()
	opts.Quiet = listQuiet
	fmt.Fprint(out, status.FormatActions(rows, opts))

	if verbose {
		store := presets.OpenPresetStore(s.doc.Path)
		for _, a := range s.doc.Actions {
			if names := store.List(a.ID); len(names) > 0 {
				fmt.Fprintf(out, "\npresets for %s: %v", a.ID, names)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}
