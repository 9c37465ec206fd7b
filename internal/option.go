package internal

import (
	"github.com/ravnholt/voxnote/internal/provider"
	"github.com/ravnholt/voxnote/internal/session"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config      *Config
	capture     session.AudioCapture
	transcriber provider.Transcriber
	generator   provider.Generator
	syncer      provider.Syncer
	tagger      provider.Tagger
	quota       provider.Quota
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithAudioCapture sets the microphone capture backend.
func WithAudioCapture(capture session.AudioCapture) Option {
	return func(a *application) {
		a.capture = capture
	}
}

// WithTranscriber sets the speech-to-text provider.
func WithTranscriber(t provider.Transcriber) Option {
	return func(a *application) {
		a.transcriber = t
	}
}

// WithGenerator sets the generative provider used for refinement.
func WithGenerator(g provider.Generator) Option {
	return func(a *application) {
		a.generator = g
	}
}

// WithSyncer sets the remote sync provider.
func WithSyncer(s provider.Syncer) Option {
	return func(a *application) {
		a.syncer = s
	}
}

// WithTagger sets the tag suggestion provider.
func WithTagger(t provider.Tagger) Option {
	return func(a *application) {
		a.tagger = t
	}
}

// WithQuota sets the daily quota provider.
func WithQuota(q provider.Quota) Option {
	return func(a *application) {
		a.quota = q
	}
}
