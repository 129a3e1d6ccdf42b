package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/audio-analyzer/orchestrator"
	"github.com/maastricht-university/audio-analyzer/search"
	"github.com/maastricht-university/audio-analyzer/storage"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var (
		index   bool
		persist bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <audio-file>",
		Short: "Analyze one audio file and print the record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, log, err := ctx.ensure()
			if err != nil {
				return err
			}
			in := args[0]

			store, err := storage.NewStore(conf.Storage.Uploads)
			if err != nil {
				return err
			}
			f, err := os.Open(in)
			if err != nil {
				return err
			}
			token, err := store.Save(f)
			f.Close()
			if err != nil {
				return err
			}
			src, err := store.Path(token)
			if err != nil {
				return err
			}

			pipeline, _ := buildPipeline(conf, log, nil)
			rec, err := pipeline.Analyze(cmd.Context(), src, filepath.Base(in))
			if err != nil {
				return err
			}
			rec.StoredPath = filepath.ToSlash(filepath.Join(filepath.Base(store.Dir()), token))

			if persist {
				path, err := orchestrator.Persist(conf.Storage.Outputs, rec)
				if err != nil {
					return fmt.Errorf("write record: %w", err)
				}
				log.WithField("path", path).Info("record written")
			}
			if index {
				idx, err := search.New(conf.Elastic, log)
				if err != nil {
					return err
				}
				if err := idx.EnsureIndex(cmd.Context()); err != nil {
					return err
				}
				id, err := idx.Save(cmd.Context(), rec)
				if err != nil {
					return err
				}
				log.WithField("id", id).Info("record indexed")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(rec)
		},
	}
	cmd.Flags().BoolVar(&index, "index", false, "save the record to Elasticsearch")
	cmd.Flags().BoolVar(&persist, "persist", true, "write the record under storage.outputs")
	return cmd
}
