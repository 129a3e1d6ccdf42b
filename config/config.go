package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "AUDIO_ANALYZER"

// EmotionLimit is the most emotions an analysis may report.
const EmotionLimit = 3

type Service struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Model string `mapstructure:"model" yaml:"model"`
}
type Services struct {
	ASR      Service `mapstructure:"asr" yaml:"asr"`
	Emotion  Service `mapstructure:"emotion" yaml:"emotion"`
	Keywords Service `mapstructure:"keywords" yaml:"keywords"`
	// Timeout bounds a single inference call, in seconds.
	Timeout int `mapstructure:"timeout" yaml:"timeout"`
}
type Media struct {
	FFmpeg     string `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	FFprobe    string `mapstructure:"ffprobe" yaml:"ffprobe"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int    `mapstructure:"channels" yaml:"channels"`
}
type Elastic struct {
	Addresses []string `mapstructure:"addresses" yaml:"addresses"`
	APIKey    string   `mapstructure:"api_key" yaml:"api_key"`
	Index     string   `mapstructure:"index" yaml:"index"`
}
type Storage struct {
	Uploads string `mapstructure:"uploads" yaml:"uploads"`
	Outputs string `mapstructure:"outputs" yaml:"outputs"`
	// Retention in hours for stored media; 0 keeps uploads forever.
	Retention int    `mapstructure:"retention" yaml:"retention"`
	SweepSpec string `mapstructure:"sweep_spec" yaml:"sweep_spec"`
}
type Pipeline struct {
	Workers       int  `mapstructure:"workers" yaml:"workers"`
	ChunkLength   int  `mapstructure:"chunk_length" yaml:"chunk_length"`
	StrideLeft    int  `mapstructure:"stride_left" yaml:"stride_left"`
	StrideRight   int  `mapstructure:"stride_right" yaml:"stride_right"`
	EmotionTopK   int  `mapstructure:"emotion_top_k" yaml:"emotion_top_k"`
	MaxEmotions   int  `mapstructure:"max_emotions" yaml:"max_emotions"`
	KeywordTopN   int  `mapstructure:"keyword_top_n" yaml:"keyword_top_n"`
	PhraseTopN    int  `mapstructure:"phrase_top_n" yaml:"phrase_top_n"`
	WarmOnStartup bool `mapstructure:"warm_on_startup" yaml:"warm_on_startup"`
}
type Server struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}
type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}
type Root struct {
	Name     string   `mapstructure:"name" yaml:"name"`
	Server   Server   `mapstructure:"server" yaml:"server"`
	Log      Log      `mapstructure:"log" yaml:"log"`
	Media    Media    `mapstructure:"media" yaml:"media"`
	Services Services `mapstructure:"services" yaml:"services"`
	Elastic  Elastic  `mapstructure:"elastic" yaml:"elastic"`
	Storage  Storage  `mapstructure:"storage" yaml:"storage"`
	Pipeline Pipeline `mapstructure:"pipeline" yaml:"pipeline"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "audio-analyzer")
	v.SetDefault("server.addr", "localhost:3000")
	v.SetDefault("server.max_upload_mb", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("media.ffmpeg", "ffmpeg")
	v.SetDefault("media.ffprobe", "ffprobe")
	v.SetDefault("media.sample_rate", 16000)
	v.SetDefault("media.channels", 1)
	v.SetDefault("services.asr.url", "http://localhost:8001")
	v.SetDefault("services.asr.model", "openai/whisper-tiny")
	v.SetDefault("services.emotion.url", "http://localhost:8002")
	v.SetDefault("services.emotion.model", "songhieng/khmer-xlmr-base-sentimental-multi-label")
	v.SetDefault("services.keywords.url", "http://localhost:8003")
	v.SetDefault("services.keywords.model", "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2")
	v.SetDefault("services.timeout", 300)
	v.SetDefault("elastic.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elastic.api_key", "")
	v.SetDefault("elastic.index", "audio_analysis")
	v.SetDefault("storage.uploads", "uploads")
	v.SetDefault("storage.outputs", "outputs")
	v.SetDefault("storage.retention", 0)
	v.SetDefault("storage.sweep_spec", "@every 15m")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.chunk_length", 30)
	v.SetDefault("pipeline.stride_left", 6)
	v.SetDefault("pipeline.stride_right", 2)
	v.SetDefault("pipeline.emotion_top_k", 8)
	v.SetDefault("pipeline.max_emotions", 3)
	v.SetDefault("pipeline.keyword_top_n", 5)
	v.SetDefault("pipeline.phrase_top_n", 8)
	v.SetDefault("pipeline.warm_on_startup", true)
}

// Load reads the configuration. An explicit path wins; otherwise config.yaml
// is searched in config/<CONFIG_ENV>, configs and the working directory.
// A missing file is not an error: defaults and environment apply.
func Load(path string) (*Root, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join("config", env))
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Root) validate() error {
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("config: pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.MaxEmotions < 1 || c.Pipeline.MaxEmotions > EmotionLimit {
		return fmt.Errorf("config: pipeline.max_emotions must be between 1 and %d, got %d", EmotionLimit, c.Pipeline.MaxEmotions)
	}
	if strings.TrimSpace(c.Storage.Uploads) == "" {
		return errors.New("config: storage.uploads must not be empty")
	}
	if strings.TrimSpace(c.Elastic.Index) == "" {
		return errors.New("config: elastic.index must not be empty")
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Root) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
