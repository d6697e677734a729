package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var jurisdictionsCmd = &cobra.Command{
	Use:     "jurisdictions",
	Aliases: []string{"list"},
	Short:   "List the jurisdictions the rule library covers",
	RunE: func(cmd *cobra.Command, args []string) error {
		auditor, err := newAuditor()
		if err != nil {
			return err
		}
		defer auditor.Close()

		store := auditor.Store()
		byTarget := make(map[string][]string)
		for alias, target := range store.Aliases() {
			byTarget[target] = append(byTarget[target], alias)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d rules, version %d\n\n", store.Count(), store.Version())
		for _, name := range store.Jurisdictions() {
			aliases := byTarget[name]
			if len(aliases) == 0 {
				fmt.Fprintln(out, name)
				continue
			}
			sort.Strings(aliases)
			fmt.Fprintf(out, "%s (%s)\n", name, strings.Join(aliases, ", "))
		}
		return nil
	},
}
