package provider

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by placeholder providers when no real
// backend has been wired in.
var ErrNotConfigured = errors.New("provider: not configured")

// NopSyncer satisfies Syncer without doing anything.
type NopSyncer struct{}

func (NopSyncer) SyncIfNeeded(context.Context, string) {}

// NopTagger satisfies Tagger and never proposes tags.
type NopTagger struct{}

func (NopTagger) SuggestTags(context.Context, string, string) ([]string, error) {
	return nil, nil
}

// AllowAllQuota satisfies Quota and never denies a feature.
type AllowAllQuota struct{}

func (AllowAllQuota) CheckDailyQuota(context.Context, string) (bool, error) {
	return true, nil
}

// UnconfiguredTranscriber fails every call with ErrNotConfigured. It is
// the default until a real speech backend is injected.
type UnconfiguredTranscriber struct{}

func (UnconfiguredTranscriber) Transcribe(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

func (UnconfiguredTranscriber) StartStream(context.Context) (Stream, error) {
	return nil, ErrNotConfigured
}

// UnconfiguredGenerator fails every call with ErrNotConfigured. The
// refinement pipeline degrades to the raw transcript when it sees this.
type UnconfiguredGenerator struct{}

func (UnconfiguredGenerator) Generate(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

var (
	_ Syncer      = NopSyncer{}
	_ Tagger      = NopTagger{}
	_ Quota       = AllowAllQuota{}
	_ Transcriber = UnconfiguredTranscriber{}
	_ Generator   = UnconfiguredGenerator{}
)
