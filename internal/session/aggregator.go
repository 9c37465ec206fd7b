package session

import (
	"strings"
	"sync"

	"github.com/ravnholt/voxnote/internal/provider"
)

// aggregator merges a provider's partial and final transcript events into
// one raw transcript. Finals accumulate; the latest partial is kept so a
// stream cut mid-sentence still yields the last heard words.
type aggregator struct {
	mu      sync.Mutex
	finals  []string
	partial string
}

func (a *aggregator) Add(ev provider.TranscriptEvent) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if ev.Kind == provider.TranscriptFinal {
		a.finals = append(a.finals, text)
		a.partial = ""
		return
	}
	a.partial = text
}

func (a *aggregator) Raw() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if a.partial == "" {
		return joined
	}
	if joined == "" {
		return a.partial
	}
	return joined + " " + a.partial
}
