package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/batchgate/internal/core"
)

// fileReport is one line of validate output.
type fileReport struct {
	File string `json:"file"`
	core.ValidationReport
	Error string `json:"error,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check local batch files",
		Long: `Check one or more local batch files and print the verdict for each.

Exits 1 when any file is rejected or cannot be read.`,
		Example: `  batchcheck validate batch.csv
  batchcheck validate --json incoming/*.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per file")
	return cmd
}

func runValidate(out io.Writer, files []string, asJSON bool) error {
	failed := 0
	enc := json.NewEncoder(out)

	for _, name := range files {
		rep := fileReport{File: name}

		content, err := os.ReadFile(name)
		if err != nil {
			rep.Error = err.Error()
		} else {
			rep.ValidationReport = core.ValidateContent(content)
		}
		if !rep.Accepted {
			failed++
		}

		if asJSON {
			if err := enc.Encode(rep); err != nil {
				return err
			}
			continue
		}
		switch {
		case rep.Error != "":
			fmt.Fprintf(out, "%s: error: %s\n", name, rep.Error)
		case rep.Accepted:
			fmt.Fprintf(out, "%s: %s\n", name, rep.Message)
		default:
			fmt.Fprintf(out, "%s: %s (Code: %s)\n", name, rep.Message, rep.Code)
		}
	}

	if failed > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}
