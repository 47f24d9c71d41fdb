// Package config loads process-wide, read-only-after-start configuration
// from an optional YAML file overlaid with environment variables (env
// wins). Config is loaded once in cmd/ingestor and handed down by value;
// per-video runs that need a language override get a copy, never a
// pointer into the shared value, so no run can mutate another's view.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type S3InputConfig struct {
	Bucket                 string `yaml:"bucket"`
	Endpoint               string `yaml:"endpoint"`
	Region                 string `yaml:"region"`
	AccessKeyID            string `yaml:"accessKeyId"`
	SecretAccessKey        string `yaml:"secretAccessKey"`
	PendingPrefix          string `yaml:"pendingPrefix"`
	ProcessingPrefix       string `yaml:"processingPrefix"`
	CompletedPrefix        string `yaml:"completedPrefix"`
	FailedPrefix           string `yaml:"failedPrefix"`
	Enabled                bool   `yaml:"enabled"`
	EnablePolling          bool   `yaml:"enablePolling"`
	PollingIntervalSeconds int    `yaml:"pollingIntervalSeconds"`
}

type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	CDNDomain       string `yaml:"cdnDomain"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// TranscriptionConfig configures both the transcription engine call and the
// C2 segmenter's phrase/word grouping parameters. This sub-config is what
// gets copied per-run to resolve the ru-audio-batch language-mutation hazard.
type TranscriptionConfig struct {
	Provider                       string  `yaml:"provider"`
	Model                          string  `yaml:"model"`
	Language                       string  `yaml:"language"`
	PhraseMinWords                 int     `yaml:"phraseMinWords"`
	PhraseMaxWords                 int     `yaml:"phraseMaxWords"`
	PhraseMinDurationSeconds       float64 `yaml:"phraseMinDurationSeconds"`
	PhraseMaxDurationSeconds       float64 `yaml:"phraseMaxDurationSeconds"`
	WordMinWords                   int     `yaml:"wordMinWords"`
	WordMaxWords                   int     `yaml:"wordMaxWords"`
	MaxGapBetweenWordChunksSeconds float64 `yaml:"maxGapBetweenWordChunksSeconds"`
}

// Copy returns a value copy safe to hand to a single orchestrator run.
func (t TranscriptionConfig) Copy() TranscriptionConfig { return t }

type AudioNormalizationConfig struct {
	Apply         bool    `yaml:"apply"`
	TargetLUFS    float64 `yaml:"targetLufs"`
	LoudnessRange float64 `yaml:"loudnessRange"`
	TruePeak      float64 `yaml:"truePeak"`
	AudioCodec    string  `yaml:"audioCodec"`
	AudioBitrate  string  `yaml:"audioBitrate"`
}

type VideoCompressionConfig struct {
	Apply        bool   `yaml:"apply"`
	Codec        string `yaml:"codec"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	MaxWidth     int    `yaml:"maxWidth"`
	MaxHeight    int    `yaml:"maxHeight"`
	PixelFormat  string `yaml:"pixelFormat"`
	MaxBitrate   string `yaml:"maxBitrate"`
	BufSize      string `yaml:"bufSize"`
	Tune         string `yaml:"tune"`
}

type Rendition struct {
	Name       string `yaml:"name"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	VideoBitrate int  `yaml:"videoBitrate"` // bits/s
	AudioBitrate int  `yaml:"audioBitrate"` // bits/s
}

type HLSConfig struct {
	Enabled            bool        `yaml:"enabled"`
	IncludeMP4Fallback bool        `yaml:"includeMp4Fallback"`
	SegmentDuration    int         `yaml:"segmentDuration"`
	PlaylistType       string      `yaml:"playlistType"`
	MasterPlaylistName string      `yaml:"masterPlaylistName"`
	VideoCodec         string      `yaml:"videoCodec"`
	AudioCodec         string      `yaml:"audioCodec"`
	Preset             string      `yaml:"preset"`
	KeyframeInterval   int         `yaml:"keyframeInterval"`
	TargetFrameRate    int         `yaml:"targetFrameRate"`
	Renditions         []Rendition `yaml:"renditions"`
}

type GoogleConfig struct {
	APIKey               string `yaml:"apiKey"`
	GeminiModel          string `yaml:"geminiModel"`
	TranslationChunkSize int    `yaml:"translationChunkSize"`
	TranslationAttempts  int    `yaml:"translationAttempts"`
}

type Config struct {
	LogMode            string                   `yaml:"logMode"`
	S3Input            S3InputConfig            `yaml:"s3Input"`
	Storage            StorageConfig            `yaml:"storage"`
	Database           DatabaseConfig           `yaml:"database"`
	Transcription      TranscriptionConfig      `yaml:"transcription"`
	AudioNormalization AudioNormalizationConfig `yaml:"audioNormalization"`
	VideoCompression   VideoCompressionConfig   `yaml:"videoCompression"`
	HLS                HLSConfig                `yaml:"hls"`
	Google             GoogleConfig             `yaml:"google"`
	VideoTopics        []string                 `yaml:"videoTopics"`
	HTTPAddr           string                   `yaml:"httpAddr"`
}

// Load starts from the built-in defaults, overlays the YAML file at path
// (if it exists), then overlays environment variables. A missing file is not an error —
// configuration can come entirely from the environment.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, uerr)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	overlayEnv(&cfg)

	if len(cfg.VideoTopics) == 0 {
		cfg.VideoTopics = defaultTopicCatalog
	}

	if errs := validate(cfg); len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		LogMode: "development",
		S3Input: S3InputConfig{
			PendingPrefix:          "pending/",
			ProcessingPrefix:       "processing/",
			CompletedPrefix:        "completed/",
			FailedPrefix:           "failed/",
			PollingIntervalSeconds: 60,
		},
		Transcription: TranscriptionConfig{
			PhraseMinWords:                 5,
			PhraseMaxWords:                 9,
			PhraseMinDurationSeconds:       1.0,
			PhraseMaxDurationSeconds:       4.5,
			WordMinWords:                   1,
			WordMaxWords:                   1,
			MaxGapBetweenWordChunksSeconds: 1.5,
		},
		AudioNormalization: AudioNormalizationConfig{
			Apply:         true,
			TargetLUFS:    -16,
			LoudnessRange: 7,
			TruePeak:      -1.5,
			AudioCodec:    "aac",
			AudioBitrate:  "192k",
		},
		VideoCompression: VideoCompressionConfig{
			Apply:       false,
			Codec:       "libx264",
			PixelFormat: "yuv420p",
		},
		HLS: HLSConfig{
			Enabled:            true,
			SegmentDuration:    4,
			PlaylistType:       "vod",
			MasterPlaylistName: "master.m3u8",
			VideoCodec:         "libx264",
			AudioCodec:         "aac",
			KeyframeInterval:   48,
			TargetFrameRate:    30,
			Renditions: []Rendition{
				{Name: "720p", Width: 1280, Height: 720, VideoBitrate: 2_500_000, AudioBitrate: 128_000},
			},
		},
		Google: GoogleConfig{
			TranslationChunkSize: 60,
			TranslationAttempts:  3,
		},
		HTTPAddr: ":8080",
	}
}

func overlayEnv(cfg *Config) {
	str := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	b := func(env string, dst *bool) {
		if v := os.Getenv(env); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}
	i := func(env string, dst *int) {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("S3_INPUT_BUCKET", &cfg.S3Input.Bucket)
	str("S3_INPUT_ENDPOINT", &cfg.S3Input.Endpoint)
	str("S3_INPUT_REGION", &cfg.S3Input.Region)
	str("S3_INPUT_ACCESS_KEY_ID", &cfg.S3Input.AccessKeyID)
	str("S3_INPUT_SECRET_ACCESS_KEY", &cfg.S3Input.SecretAccessKey)
	b("S3_INPUT_ENABLED", &cfg.S3Input.Enabled)
	b("S3_INPUT_ENABLE_POLLING", &cfg.S3Input.EnablePolling)
	i("S3_INPUT_POLLING_INTERVAL_SECONDS", &cfg.S3Input.PollingIntervalSeconds)

	str("STORAGE_ENDPOINT", &cfg.Storage.Endpoint)
	str("STORAGE_REGION", &cfg.Storage.Region)
	str("STORAGE_BUCKET", &cfg.Storage.Bucket)
	str("STORAGE_ACCESS_KEY_ID", &cfg.Storage.AccessKeyID)
	str("STORAGE_SECRET_ACCESS_KEY", &cfg.Storage.SecretAccessKey)
	str("STORAGE_CDN_DOMAIN", &cfg.Storage.CDNDomain)

	str("DATABASE_HOST", &cfg.Database.Host)
	i("DATABASE_PORT", &cfg.Database.Port)
	str("DATABASE_USER", &cfg.Database.User)
	str("DATABASE_PASSWORD", &cfg.Database.Password)
	str("DATABASE_NAME", &cfg.Database.Database)

	str("TRANSCRIPTION_LANGUAGE", &cfg.Transcription.Language)
	str("TRANSCRIPTION_MODEL", &cfg.Transcription.Model)
	str("TRANSCRIPTION_PROVIDER", &cfg.Transcription.Provider)

	str("GOOGLE_API_KEY", &cfg.Google.APIKey)
	str("GOOGLE_GEMINI_MODEL", &cfg.Google.GeminiModel)

	str("LOG_MODE", &cfg.LogMode)
	str("HTTP_ADDR", &cfg.HTTPAddr)
}

// validate aggregates every missing required field into one error so
// operators fix configuration in a single pass instead of one field at a time.
func validate(cfg Config) []string {
	var errs []string
	if cfg.S3Input.Enabled {
		if cfg.S3Input.Bucket == "" {
			errs = append(errs, "s3Input.bucket is required when s3Input.enabled")
		}
		if cfg.S3Input.Region == "" {
			errs = append(errs, "s3Input.region is required when s3Input.enabled")
		}
	}
	if cfg.Database.Host != "" && cfg.Database.Database == "" {
		errs = append(errs, "database.database is required when database.host is set")
	}
	if cfg.Google.APIKey == "" {
		errs = append(errs, "google.apiKey (or GOOGLE_API_KEY) is required")
	}
	return errs
}

// defaultTopicCatalog is the closed catalog of topics the analysis LLM may
// assign. Case-insensitive match at validation time, canonical casing here.
var defaultTopicCatalog = []string{
	"Technology", "Education", "Science", "Business", "Health", "Sports",
	"Music", "Art", "Food", "Travel", "History", "Politics", "Environment",
	"Psychology", "Literature", "Film", "Gaming", "Fashion", "Religion",
	"Philosophy", "Economics", "Law", "Medicine", "Engineering", "Mathematics",
	"Astronomy", "Biology", "Chemistry", "Physics", "Geography", "Linguistics",
	"Sociology", "Anthropology", "Architecture", "Design", "Photography",
	"Theater", "Dance", "Comedy", "News", "Finance", "Marketing",
	"Entrepreneurship", "Parenting", "Relationships", "Spirituality",
	"Fitness", "Nutrition", "Nature", "Wildlife", "Space", "Military",
	"Transportation", "Agriculture", "Crafts",
}
