package main

import (
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/audio-analyzer/clients"
	cfg "github.com/maastricht-university/audio-analyzer/config"
	"github.com/maastricht-university/audio-analyzer/logging"
	"github.com/maastricht-university/audio-analyzer/media"
	"github.com/maastricht-university/audio-analyzer/models"
	"github.com/maastricht-university/audio-analyzer/orchestrator"
)

// commandContext loads configuration and the logger once per invocation.
type commandContext struct {
	configFlag *string

	once   sync.Once
	config *cfg.Root
	log    *logrus.Logger
	closer io.Closer
	err    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensure() (*cfg.Root, *logrus.Logger, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		conf, err := cfg.Load(path)
		if err != nil {
			c.err = err
			return
		}
		log, closer, err := logging.New(conf.Log)
		if err != nil {
			c.err = err
			return
		}
		c.config, c.log, c.closer = conf, log, closer
	})
	return c.config, c.log, c.err
}

func (c *commandContext) close() {
	if c.closer != nil {
		_ = c.closer.Close()
	}
}

// buildPipeline wires the model registry and the analysis pipeline.
func buildPipeline(conf *cfg.Root, log logrus.FieldLogger, observeLoad models.Observer, opts ...orchestrator.Option) (*orchestrator.Pipeline, *models.Registry) {
	h := clients.NewHTTP(cfg.DurSeconds(conf.Services.Timeout))
	reg := models.FromConfig(conf, h, log, observeLoad)
	norm := media.NewNormalizer(conf.Media.FFmpeg, conf.Media.SampleRate, conf.Media.Channels, log)
	opts = append([]orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithProber(media.NewProber(conf.Media.FFprobe)),
	}, opts...)
	return orchestrator.NewPipeline(conf.Pipeline, reg, norm, opts...), reg
}
