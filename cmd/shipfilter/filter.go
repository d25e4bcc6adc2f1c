package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"shipfilter/internal/filterspec"
)

var (
	intentFile string
	schemaFile string
	sessionID  string
	confirm    bool
	dialect    string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a filter intent and print the resolved spec",
	Example: `  shipfilter resolve -f intent.json --schema columns.json
  echo '{"root":{"logic":"AND","conditions":[{"semantic_key":"northeast"}]}}' | shipfilter resolve --confirm`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg, logger, schemaFile)
		if err != nil {
			return err
		}
		defer b.Close()

		spec, err := resolveIntent(cmd, b)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), spec)
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Resolve a filter intent and print the compiled SQL filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg, logger, schemaFile)
		if err != nil {
			return err
		}
		defer b.Close()

		spec, err := resolveIntent(cmd, b)
		if err != nil {
			return err
		}
		if spec.Status != filterspec.StatusResolved {
			if err := printJSON(cmd.ErrOrStderr(), spec); err != nil {
				return err
			}
			return fmt.Errorf("spec is %s; rerun with --confirm or fix the unresolved terms", spec.Status)
		}
		compiled, err := b.svc.Compile(cmd.Context(), sessionID, spec, dialect)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), compiled)
	},
}

func init() {
	for _, c := range []*cobra.Command{resolveCmd, compileCmd} {
		c.Flags().StringVarP(&intentFile, "file", "f", "-", "filter intent JSON file, - for stdin")
		c.Flags().StringVar(&schemaFile, "schema", "", "JSON object of column types; runs offline instead of introspecting the database")
		c.Flags().StringVar(&sessionID, "session", "", "session the confirmations are recorded under; a fresh one per run when empty")
		c.Flags().BoolVar(&confirm, "confirm", false, "confirm every pending Tier B expansion")
	}
	compileCmd.Flags().StringVar(&dialect, "dialect", "", "SQL dialect (duckdb, postgres, sqlite); defaults to compiler.dialect")
}

// resolveIntent reads the intent and resolves it, confirming pending
// expansions when --confirm is set.
func resolveIntent(cmd *cobra.Command, b *backend) (*filterspec.ResolvedFilterSpec, error) {
	intent, err := readIntent(cmd.InOrStdin(), intentFile)
	if err != nil {
		return nil, err
	}
	sessionID = sessionOrNew(sessionID)
	ctx := cmd.Context()
	spec, err := b.svc.Resolve(ctx, sessionID, intent)
	if err != nil {
		return nil, err
	}
	if confirm && spec.Status == filterspec.StatusNeedsConfirmation {
		for _, p := range spec.PendingConfirmations {
			fmt.Fprintf(cmd.ErrOrStderr(), "confirming %s: %s\n", p.CanonicalKey, p.Expansion)
		}
		return b.svc.Confirm(ctx, sessionID, spec.ResolutionToken, intent)
	}
	return spec, nil
}

func sessionOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func readIntent(stdin io.Reader, path string) (filterspec.FilterIntent, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return filterspec.FilterIntent{}, err
	}
	var intent filterspec.FilterIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return filterspec.FilterIntent{}, fmt.Errorf("parse intent: %w", err)
	}
	return intent, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
