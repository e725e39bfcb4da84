package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stevemurr/collection-server/store"
)

func newDumpCmd(deps *CmdDeps) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "dump <collection>",
		Short: "Print every record of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q (supported: json, yaml)", format)
			}
			rt, err := deps.open(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.store.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), records, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return cmd
}

func writeRecords(w io.Writer, records []store.Record, format string) error {
	if records == nil {
		records = []store.Record{}
	}
	if format == "yaml" {
		out := make([]any, len(records))
		for i, rec := range records {
			out[i] = plain(map[string]any(rec))
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// plain rewrites json.Number values as int64 or float64 so YAML renders
// them as numbers.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
