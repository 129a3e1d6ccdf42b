package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// newKeywordsCommand reads text from stdin and writes a JSON array of
// keyphrases to stdout. Empty input prints [] without contacting any model.
func newKeywordsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "keywords",
		Short: "Extract keyphrases from stdin as a JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text := strings.TrimSpace(string(raw))
			phrases := []string{}
			if text != "" {
				conf, log, err := ctx.ensure()
				if err != nil {
					return err
				}
				pipeline, _ := buildPipeline(conf, log, nil)
				if phrases, err = pipeline.ExtractPhrases(cmd.Context(), text); err != nil {
					return err
				}
			}
			out, err := marshalPhrases(phrases)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func marshalPhrases(phrases []string) (string, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(phrases); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
