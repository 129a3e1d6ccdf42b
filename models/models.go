package models

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/audio-analyzer/clients"
	cfg "github.com/maastricht-university/audio-analyzer/config"
	"github.com/maastricht-university/audio-analyzer/emotion"
)

// SpeechModel transcribes a mono waveform.
type SpeechModel interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, opts clients.ChunkOpts) (clients.Transcription, error)
}

// EmotionModel classifies text and exposes its label configuration.
type EmotionModel interface {
	emotion.LabelSource
	Classify(ctx context.Context, text string, topK int) ([]clients.EmoScore, error)
}

// KeywordModel extracts ranked keyphrases.
type KeywordModel interface {
	Extract(ctx context.Context, req clients.KeywordReq) ([]clients.Keyphrase, error)
}

// Registry holds one slot per capability.
type Registry struct {
	Speech   *Slot[SpeechModel]
	Emotion  *Slot[EmotionModel]
	Keywords *Slot[KeywordModel]
	log      logrus.FieldLogger
}

// New builds a registry from explicit loaders.
func New(speech LoadFunc[SpeechModel], emo LoadFunc[EmotionModel], kw LoadFunc[KeywordModel], log logrus.FieldLogger, observe Observer) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "models")
	return &Registry{
		Speech:   NewSlot(Transcriber, speech, log, observe),
		Emotion:  NewSlot(Classifier, emo, log, observe),
		Keywords: NewSlot(KeywordExtractor, kw, log, observe),
		log:      log,
	}
}

// FromConfig wires the registry to the configured inference services.
func FromConfig(c *cfg.Root, h *clients.HTTP, log logrus.FieldLogger, observe Observer) *Registry {
	s := c.Services
	return New(
		func(ctx context.Context) (SpeechModel, error) {
			return clients.LoadSpeech(ctx, h, s.ASR.URL, s.ASR.Model)
		},
		func(ctx context.Context) (EmotionModel, error) {
			return clients.LoadClassifier(ctx, h, s.Emotion.URL, s.Emotion.Model)
		},
		func(ctx context.Context) (KeywordModel, error) {
			return clients.LoadKeywords(ctx, h, s.Keywords.URL, s.Keywords.Model)
		},
		log, observe,
	)
}

func (r *Registry) slots() []warmable {
	return []warmable{r.Speech, r.Emotion, r.Keywords}
}

// Preload acquires every capability concurrently and waits. Slots load
// independently; the first error is returned after all attempts finish.
func (r *Registry) Preload(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range r.slots() {
		g.Go(func() error { return s.warm(ctx) })
	}
	return g.Wait()
}

// Warm starts Preload in the background and returns immediately.
func (r *Registry) Warm(ctx context.Context) {
	go func() {
		if err := r.Preload(ctx); err != nil {
			r.log.WithError(err).Warn("model warm-up incomplete; loading will be retried on demand")
			return
		}
		r.log.Info("all models ready")
	}()
}

// States reports the current state of every capability.
func (r *Registry) States() map[Capability]State {
	out := make(map[Capability]State, 3)
	for _, s := range r.slots() {
		out[s.Capability()] = s.State()
	}
	return out
}
