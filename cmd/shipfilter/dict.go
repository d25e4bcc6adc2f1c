package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shipfilter/internal/dictionary"
	"shipfilter/internal/filterspec"
)

var (
	dictTier string
	dictJSON bool
)

// dictCmd reads only the built-in dictionary, so it needs no configuration.
var dictCmd = &cobra.Command{
	Use:   "dict",
	Short: "List the canonical term dictionary",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dict := dictionary.Default()
		var entries []*dictionary.Entry
		for _, e := range dict.Entries() {
			if dictTier == "" || strings.EqualFold(string(e.Tier), dictTier) {
				entries = append(entries, e)
			}
		}
		if dictJSON {
			return printJSON(cmd.OutOrStdout(), entries)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "KEY\tTIER\tKIND\tEXPANSION\tALIASES\n")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Key, e.Tier, e.Kind, expansion(e), strings.Join(e.Aliases, ", "))
		}
		fmt.Fprintf(w, "\n%d entries, %s\n", len(entries), dict.Version())
		return w.Flush()
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <phrase>",
	Short: "Show the canonical terms closest to a phrase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dict := dictionary.Default()
		if e, ok := dict.Lookup(args[0]); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is tier %s: %s\n", e.Key, e.Tier, e.Description)
			return nil
		}
		return printJSON(cmd.OutOrStdout(), dict.Suggest(args[0]))
	},
}

func init() {
	dictCmd.Flags().StringVar(&dictTier, "tier", "", "only list entries of this tier (A, B or C)")
	dictCmd.Flags().BoolVar(&dictJSON, "json", false, "print entries as JSON")
	dictCmd.AddCommand(suggestCmd)
}

func expansion(e *dictionary.Entry) string {
	if e.Operator == "" {
		return "-"
	}
	c := filterspec.Cond("<"+targetName(e)+">", e.Operator, e.Values...)
	return filterspec.ConditionLabel(c)
}

func targetName(e *dictionary.Entry) string {
	if len(e.Target.Exact) > 0 {
		return e.Target.Exact[0]
	}
	if len(e.Target.Synonyms) > 0 {
		return e.Target.Synonyms[0]
	}
	return "column"
}
