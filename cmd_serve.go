package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/audio-analyzer/metrics"
	"github.com/maastricht-university/audio-analyzer/orchestrator"
	"github.com/maastricht-university/audio-analyzer/search"
	"github.com/maastricht-university/audio-analyzer/server"
	"github.com/maastricht-university/audio-analyzer/storage"
	"github.com/maastricht-university/audio-analyzer/stream"
)

// derivedGrace is how long an orphaned derived waveform may live.
const derivedGrace = time.Hour

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, log, err := ctx.ensure()
			if err != nil {
				return err
			}
			if addr != "" {
				conf.Server.Addr = addr
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			pipeline, reg := buildPipeline(conf, log, m.ObserveLoad,
				orchestrator.WithStageObserver(m.ObserveStage),
			)

			store, err := storage.NewStore(conf.Storage.Uploads)
			if err != nil {
				return err
			}
			index, err := search.New(conf.Elastic, log)
			if err != nil {
				return err
			}
			ensureCtx, cancel := context.WithTimeout(runCtx, 15*time.Second)
			if err := index.EnsureIndex(ensureCtx); err != nil {
				log.WithError(err).Warn("elasticsearch index not ready; record endpoints will fail until it is")
			}
			cancel()

			if conf.Pipeline.WarmOnStartup {
				reg.Warm(runCtx)
			}

			if conf.Storage.SweepSpec != "" {
				job := storage.NewSweepJob(store, derivedGrace, time.Duration(conf.Storage.Retention)*time.Hour, log)
				sched, err := storage.NewScheduler(conf.Storage.SweepSpec, job)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			srv := server.New(server.Deps{
				Store:       store,
				Streamer:    stream.New(store),
				Analyzer:    pipeline,
				Index:       index,
				Models:      reg,
				Metrics:     m,
				Log:         log,
				MaxUploadMB: conf.Server.MaxUploadMB,
			})
			return srv.Run(runCtx, conf.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
