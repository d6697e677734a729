package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fairprop/fairprop-go"
	"github.com/fairprop/fairprop-go/core"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Validate or export rule libraries",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Load a rule directory and report rejected records",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var store *core.RuleStore
		source := "bundled rules"
		switch {
		case len(args) == 1:
			source = args[0]
			store = core.NewRuleStoreFromDir(args[0], core.WithStoreLogger(logger))
		case rulesDir != "":
			source = rulesDir
			store = core.NewRuleStoreFromDir(rulesDir, core.WithStoreLogger(logger))
		default:
			store = core.NewRuleStore(fairprop.BundledRules(), core.WithStoreLogger(logger))
		}

		result, err := store.Load()
		if err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d rules from %d files, %d jurisdictions (sha256 %s)\n",
			source, result.Rules, result.Files, len(store.Jurisdictions()), result.Hash)
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
		if len(result.Warnings) > 0 {
			return fmt.Errorf("%d rule record(s) rejected", len(result.Warnings))
		}
		return nil
	},
}

var rulesExportCmd = &cobra.Command{
	Use:   "export DIR",
	Short: "Write the bundled rule library to DIR for editing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := exportRules(fairprop.BundledRules(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d files to %s\n", n, args[0])
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesExportCmd)
}

// exportRules copies every file of src below dst and returns how many were written
func exportRules(src fs.FS, dst string) (int, error) {
	count := 0
	err := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dst, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := fs.ReadFile(src, path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to export rules: %w", err)
	}
	return count, nil
}
