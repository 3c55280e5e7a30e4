package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vcatdb/vcat/internal/version"
)

// printWriteResult renders a WriteResult in the selected format.
func printWriteResult(w io.Writer, format string, res version.WriteResult) error {
	if format == "json" {
		return encodeJSON(w, map[string]any{
			"entity_id":      res.EntityID,
			"transaction_id": res.TransactionID,
			"version_hash":   res.VersionHash,
			"created":        res.Created,
			"hash_reused":    res.HashReused,
		})
	}

	verb := "updated"
	if res.Created {
		verb = "created"
	}
	fmt.Fprintf(w, "%s entity %d at transaction %d\n", verb, res.EntityID, res.TransactionID)
	fmt.Fprintf(w, "version %s", res.VersionHash)
	if res.HashReused {
		fmt.Fprint(w, " (content unchanged)")
	}
	fmt.Fprintln(w)
	return nil
}

// printState renders an entity state.
func printState(w io.Writer, format string, state version.State) error {
	if format == "json" {
		return encodeJSON(w, map[string]any{
			"entity_id":      state.EntityID,
			"entity_type":    state.EntityType,
			"transaction_id": state.TransactionID,
			"version_hash":   state.VersionHash,
			"attributes":     state.Attributes,
		})
	}

	fmt.Fprintf(w, "entity %d (%s) at transaction %d\n", state.EntityID, state.EntityType, state.TransactionID)
	fmt.Fprintf(w, "version %s\n", state.VersionHash)
	attrs, err := json.MarshalIndent(state.Attributes, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(attrs))
	return nil
}

// printHistory renders an entity's version history.
func printHistory(w io.Writer, format string, history []version.VersionInfo) error {
	if format == "json" {
		return encodeJSON(w, history)
	}

	for _, info := range history {
		end := "open"
		if info.EndTransactionID != nil {
			end = fmt.Sprintf("%d", *info.EndTransactionID)
		}
		fmt.Fprintf(w, "~%d  tx %d..%s  %-6s", info.Index, info.TransactionID, end, info.Operation)
		if info.VersionHash != "" {
			fmt.Fprintf(w, "  %s", info.VersionHash)
		}
		if len(info.Tags) > 0 {
			fmt.Fprintf(w, "  [%s]", strings.Join(info.Tags, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// printTags renders a tag list.
func printTags(w io.Writer, format string, names []string) error {
	if format == "json" {
		return encodeJSON(w, names)
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
	return nil
}

// printReport renders a verify/rebuild report.
func printReport(w io.Writer, format string, rep version.VerifyReport) error {
	if format == "json" {
		return encodeJSON(w, rep)
	}

	fmt.Fprintf(w, "entities checked: %d\n", rep.EntitiesChecked)
	fmt.Fprintf(w, "states checked:   %d\n", rep.StatesChecked)
	fmt.Fprintf(w, "latest tx:        %d\n", rep.LatestTransaction)
	fmt.Fprintf(w, "missing hashes:   %d\n", rep.MissingHashes)
	fmt.Fprintf(w, "repaired hashes:  %d\n", rep.RepairedHashes)
	fmt.Fprintf(w, "drifted pointers: %d\n", rep.DriftedPointers)
	fmt.Fprintf(w, "repaired pointers: %d\n", rep.RepairedPointers)
	return nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
