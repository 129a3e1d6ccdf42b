// Package orchestrator sequences the analysis of one upload: probe,
// normalize, transcribe, classify, extract keywords and aggregate.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/maastricht-university/audio-analyzer/clients"
	cfg "github.com/maastricht-university/audio-analyzer/config"
	"github.com/maastricht-university/audio-analyzer/emotion"
	"github.com/maastricht-university/audio-analyzer/errs"
	"github.com/maastricht-university/audio-analyzer/media"
	"github.com/maastricht-university/audio-analyzer/models"
)

// Normalizer converts media into the canonical waveform file.
type Normalizer interface {
	Normalize(ctx context.Context, src string) (string, error)
}

// Prober reads container metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Metadata, error)
}

// StageObserver is told how long each stage took and whether it failed.
type StageObserver func(stage string, d time.Duration, err error)

type Pipeline struct {
	cfg     cfg.Pipeline
	models  *models.Registry
	norm    Normalizer
	prober  Prober
	decode  func(path string) (media.Waveform, error)
	sem     *semaphore.Weighted
	observe StageObserver
	log     logrus.FieldLogger
	now     func() time.Time
}

type Option func(*Pipeline)

func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

func WithStageObserver(o StageObserver) Option {
	return func(p *Pipeline) { p.observe = o }
}

// WithProber enables best-effort metadata extraction.
func WithProber(pr Prober) Option {
	return func(p *Pipeline) { p.prober = pr }
}

func NewPipeline(c cfg.Pipeline, reg *models.Registry, norm Normalizer, opts ...Option) *Pipeline {
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	p := &Pipeline{
		cfg:    c,
		models: reg,
		norm:   norm,
		decode: media.DecodeWaveform,
		sem:    semaphore.NewWeighted(int64(workers)),
		log:    logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.WithField("component", "pipeline")
	return p
}

// Analyze runs the full pipeline on a stored file. originalName is the
// client-supplied file name and only feeds the record and the track id.
// The derived waveform is removed on every exit path.
func (p *Pipeline) Analyze(ctx context.Context, src, originalName string) (AnalysisRecord, error) {
	stored := filepath.Base(src)
	log := p.log.WithFields(logrus.Fields{"file": originalName, "stored": stored})
	rec := AnalysisRecord{
		FileName:       originalName,
		StoredFileName: stored,
		TrackID:        deriveTrackID(originalName, src),
	}
	p.probe(ctx, src, &rec, log)

	defer removeDerived(media.DerivedPath(src), log)

	var wavPath string
	err := p.stage(ctx, "normalize", func(ctx context.Context) error {
		var err error
		wavPath, err = p.norm.Normalize(ctx, src)
		return err
	})
	if err != nil {
		log.WithError(err).Error("normalize failed")
		return AnalysisRecord{}, err
	}

	text, err := p.Transcribe(ctx, wavPath)
	if err != nil {
		log.WithError(err).Error("transcription failed")
		return AnalysisRecord{}, err
	}
	rec.Transcription = text

	ta, err := p.AnalyzeText(ctx, text)
	if err != nil {
		log.WithError(err).Error("text analysis failed")
		return AnalysisRecord{}, err
	}
	rec.TextAnalysis = ta
	rec.Timestamp = p.now().UTC()

	log.WithFields(logrus.Fields{
		"chars":      len(text),
		"emotions":   ta.PrimaryEmotions,
		"confidence": ta.Confidence,
	}).Info("analysis complete")
	return rec, nil
}

// probe fills duration and bit rate when available. Failures are logged only.
func (p *Pipeline) probe(ctx context.Context, src string, rec *AnalysisRecord, log logrus.FieldLogger) {
	if p.prober == nil {
		return
	}
	var md media.Metadata
	err := p.stage(ctx, "probe", func(ctx context.Context) error {
		var err error
		md, err = p.prober.Probe(ctx, src)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("metadata probe failed; continuing without it")
		return
	}
	rec.Duration = md.Duration
	rec.BitRate = md.BitRate
}

// Transcribe decodes a canonical waveform file and returns its transcript.
func (p *Pipeline) Transcribe(ctx context.Context, wavPath string) (string, error) {
	var wave media.Waveform
	err := p.stage(ctx, "decode", func(context.Context) error {
		var err error
		wave, err = p.decode(wavPath)
		return err
	})
	if err != nil {
		return "", err
	}

	model, err := p.models.Speech.Acquire(ctx)
	if err != nil {
		return "", errs.Wrap(errs.ErrTranscription, "transcribe", "load model", "", err)
	}
	opts := clients.ChunkOpts{
		ChunkLength: float64(p.cfg.ChunkLength),
		StrideLeft:  float64(p.cfg.StrideLeft),
		StrideRight: float64(p.cfg.StrideRight),
	}
	var tr clients.Transcription
	err = p.stage(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		tr, err = model.Transcribe(ctx, wave.Samples, wave.SampleRate, opts)
		return err
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrTranscription, "transcribe", "", "", err)
	}
	text := tr.Text()
	p.log.WithFields(logrus.Fields{
		"chars":   len(text),
		"kind":    fmt.Sprintf("%T", tr),
		"seconds": math.Round(wave.Duration()*10) / 10,
	}).Debug("transcribed")
	return text, nil
}

// AnalyzeText classifies emotions and extracts keywords. Blank text yields
// the empty analysis without touching any model.
func (p *Pipeline) AnalyzeText(ctx context.Context, text string) (TextAnalysis, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return emptyAnalysis(), nil
	}

	classifier, err := p.models.Emotion.Acquire(ctx)
	if err != nil {
		return TextAnalysis{}, errs.Wrap(errs.ErrClassification, "classify", "load model", "", err)
	}
	var raw []clients.EmoScore
	err = p.stage(ctx, "classify", func(ctx context.Context) error {
		var err error
		raw, err = classifier.Classify(ctx, trimmed, p.cfg.EmotionTopK)
		return err
	})
	if err != nil {
		return TextAnalysis{}, errs.Wrap(errs.ErrClassification, "classify", "", "", err)
	}

	obs := make([]emotion.Observation, 0, len(raw))
	for _, s := range raw {
		obs = append(obs, emotion.Observation{Label: s.Label, Score: s.Score})
	}
	ranked := emotion.Rank(obs, classifier, min(p.cfg.MaxEmotions, cfg.EmotionLimit))

	keywords, err := p.extract(ctx, clients.KeywordReq{
		Text:       trimmed,
		TopN:       p.cfg.KeywordTopN,
		NgramRange: [2]int{1, 1},
		StopWords:  "english",
	})
	if err != nil {
		return TextAnalysis{}, err
	}

	ta := TextAnalysis{
		Keywords:        keywords,
		Emotions:        make([]string, 0, len(ranked)),
		PrimaryEmotions: make([]string, 0, len(ranked)),
		Scores:          make(map[string]float64, len(ranked)),
	}
	for _, r := range ranked {
		ta.Emotions = append(ta.Emotions, r.Label)
		ta.PrimaryEmotions = append(ta.PrimaryEmotions, r.Label)
		ta.Scores[r.Label] = emotion.Round4(r.Score)
	}
	if len(ranked) > 0 {
		ta.Confidence = percent(ranked[0].Score)
	}
	return ta, nil
}

// ExtractPhrases returns diverse keyphrases of up to three words for text.
func (p *Pipeline) ExtractPhrases(ctx context.Context, text string) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []string{}, nil
	}
	return p.extract(ctx, clients.KeywordReq{
		Text:       trimmed,
		TopN:       p.cfg.PhraseTopN,
		NgramRange: [2]int{1, 3},
		StopWords:  "english",
		UseMMR:     true,
		Diversity:  0.7,
	})
}

func (p *Pipeline) extract(ctx context.Context, req clients.KeywordReq) ([]string, error) {
	model, err := p.models.Keywords.Acquire(ctx)
	if err != nil {
		return nil, errs.Wrap(nil, "keywords", "load model", "", err)
	}
	var phrases []clients.Keyphrase
	err = p.stage(ctx, "keywords", func(ctx context.Context) error {
		var err error
		phrases, err = model.Extract(ctx, req)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(nil, "keywords", "", "", err)
	}
	out := make([]string, 0, len(phrases))
	for _, k := range phrases {
		out = append(out, k.Phrase)
	}
	return out, nil
}

// stage runs fn on the bounded offload pool and reports its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer p.sem.Release(1)

	started := time.Now()
	err := fn(ctx)
	if p.observe != nil {
		p.observe(name, time.Since(started), err)
	}
	return err
}

func percent(score float64) int {
	v := int(math.Round(score * 100))
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
