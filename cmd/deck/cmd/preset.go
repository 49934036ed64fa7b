package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meow-stack/actiondeck/internal/cli"
	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/form"
	"github.com/meow-stack/actiondeck/internal/presets"
)

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Manage named form presets",
	Long: `Presets are named sets of form values stored beside the document in
<document>.presets.yaml. Secret fields are never stored.`,
}

var presetListCmd = &cobra.Command{
	Use:   "list <action>",
	Short: "List the presets of an action",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetList,
}

var presetSaveCmd = &cobra.Command{
	Use:   "save <action> <name>",
	Short: "Save form values as a preset",
	Args:  cobra.ExactArgs(2),
	RunE:  runPresetSave,
}

var presetRenameCmd = &cobra.Command{
	Use:   "rename <action> <old> <new>",
	Short: "Rename a preset",
	Args:  cobra.ExactArgs(3),
	RunE:  runPresetRename,
}

var presetDeleteCmd = &cobra.Command{
	Use:   "delete <action> <name>",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(2),
	RunE:  runPresetDelete,
}

var (
	presetInput inputFlags
	presetYes   bool
)

func init() {
	addInputFlags(presetSaveCmd, &presetInput)
	presetDeleteCmd.Flags().BoolVarP(&presetYes, "yes", "y", false, "do not ask for confirmation")
	presetCmd.AddCommand(presetListCmd, presetSaveCmd, presetRenameCmd, presetDeleteCmd)
	rootCmd.AddCommand(presetCmd)
}

// openPresets opens the preset store of the document and checks actionID.
func openPresets(actionID string) (*session, *presets.PresetStore, error) {
	s, err := openSession()
	if err != nil {
		return nil, nil, err
	}
	if s.doc.Action(actionID) == nil {
		s.Close()
		return nil, nil, deckerr.UnknownAction(actionID)
	}
	return s, presets.OpenPresetStore(s.doc.Path), nil
}

func runPresetList(cmd *cobra.Command, args []string) error {
	s, store, err := openPresets(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	names := store.List(args[0])
	if len(names) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No presets for %s.\n", args[0])
		return nil
	}
	lr := store.LastRun(args[0])
	for _, name := range names {
		marker := " "
		if lr != nil && lr.Mode == presets.ModePresetRef && lr.PresetName == name {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
	}
	return nil
}

func runPresetSave(cmd *cobra.Command, args []string) error {
	s, store, err := openPresets(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	action := s.doc.Action(args[0])
	input, err := collectInput(store, action, presetInput, s.logger)
	if err != nil {
		return err
	}
	values, err := form.NewCoercer(filepath.Dir(s.doc.Path)).Coerce(action.ID, action.Form, input)
	if err != nil {
		return err
	}
	if err := store.Save(action.ID, args[1], form.Persistable(action.Form, values)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %q for %s\n", args[1], action.ID)
	return nil
}

func runPresetRename(cmd *cobra.Command, args []string) error {
	s, store, err := openPresets(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	if err := store.Rename(args[0], args[1], args[2]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed preset %q to %q\n", args[1], args[2])
	return nil
}

func runPresetDelete(cmd *cobra.Command, args []string) error {
	s, store, err := openPresets(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	if !presetYes {
		ok, err := cli.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete preset %q of %s?", args[1], args[0]), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	cleared, err := store.Delete(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %q\n", args[1])
	if cleared {
		fmt.Fprintln(cmd.OutOrStdout(), "The last run referenced this preset and was reset.")
	}
	return nil
}
