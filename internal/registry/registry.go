// Package registry implements the process-wide note-id → processing-stage
// table that UI surfaces observe, with Server-Sent Events broadcast of
// every change.
package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/ravnholt/voxnote/internal/models"
)

// Event is broadcast to subscribers on every stage change.
type Event struct {
	Type   string                  `json:"type"`
	NoteID string                  `json:"note_id"`
	Stage  *models.ProcessingStage `json:"stage,omitempty"`
}

type setReq struct {
	noteID string
	stage  models.ProcessingStage
	done   chan struct{}
}

type removeReq struct {
	noteID string
	done   chan struct{}
}

type getReq struct {
	noteID string
	resp   chan getResp
}

type getResp struct {
	stage models.ProcessingStage
	ok    bool
}

// Registry is the observable stage table.
//
// Concurrency model: a single internal event loop (goroutine) owns all
// mutable state (the stage map + subscriber set). Public methods
// communicate with this loop through channels, so no mutexes are required.
// Set and Remove block until the loop has applied the write, which gives
// readers read-after-write consistency: a Get issued after Set returns
// always observes the new stage.
type Registry struct {
	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	setCh         chan setReq
	removeCh      chan removeReq
	getCh         chan getReq
	snapshotCh    chan chan map[string]models.ProcessingStage
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates a registry and starts its event loop.
func New() *Registry {
	r := &Registry{
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		setCh:         make(chan setReq),
		removeCh:      make(chan removeReq),
		getCh:         make(chan getReq),
		snapshotCh:    make(chan chan map[string]models.ProcessingStage),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Registry) run() {
	defer close(r.stopped)

	stages := make(map[string]models.ProcessingStage)
	subscribers := make(map[chan []byte]struct{})

	broadcast := func(ev Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		msg := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, payload))
		for ch := range subscribers {
			select {
			case ch <- msg:
			default:
				// Subscriber buffer full; skip to avoid blocking the loop.
			}
		}
	}

	for {
		select {
		case <-r.stopCh:
			for ch := range subscribers {
				close(ch)
			}
			return

		case ch := <-r.subscribeCh:
			subscribers[ch] = struct{}{}

		case ch := <-r.unsubscribeCh:
			if _, ok := subscribers[ch]; ok {
				delete(subscribers, ch)
				close(ch)
			}

		case req := <-r.setCh:
			stages[req.noteID] = req.stage
			stage := req.stage
			broadcast(Event{Type: "stage.changed", NoteID: req.noteID, Stage: &stage})
			close(req.done)

		case req := <-r.removeCh:
			if _, ok := stages[req.noteID]; ok {
				delete(stages, req.noteID)
				broadcast(Event{Type: "stage.removed", NoteID: req.noteID})
			}
			close(req.done)

		case req := <-r.getCh:
			stage, ok := stages[req.noteID]
			req.resp <- getResp{stage: stage, ok: ok}

		case resp := <-r.snapshotCh:
			out := make(map[string]models.ProcessingStage, len(stages))
			for k, v := range stages {
				out[k] = v
			}
			resp <- out

		case resp := <-r.countReqCh:
			resp <- len(subscribers)
		}
	}
}

// Close stops the event loop and closes all subscriber channels.
func (r *Registry) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.stopCh)
	}
	<-r.stopped
}

// Set records the stage for a note and notifies subscribers. It returns
// once the write is visible to all readers.
func (r *Registry) Set(noteID string, stage models.ProcessingStage) {
	if r.closed.Load() {
		return
	}
	req := setReq{noteID: noteID, stage: stage, done: make(chan struct{})}
	select {
	case r.setCh <- req:
		<-req.done
	case <-r.stopped:
	}
}

// Remove drops a note's entry, if present, and notifies subscribers.
func (r *Registry) Remove(noteID string) {
	if r.closed.Load() {
		return
	}
	req := removeReq{noteID: noteID, done: make(chan struct{})}
	select {
	case r.removeCh <- req:
		<-req.done
	case <-r.stopped:
	}
}

// Get returns the stage for a note. ok is false when the note is idle
// (absent from the table).
func (r *Registry) Get(noteID string) (models.ProcessingStage, bool) {
	if r.closed.Load() {
		return models.ProcessingStage{}, false
	}
	req := getReq{noteID: noteID, resp: make(chan getResp, 1)}
	select {
	case r.getCh <- req:
	case <-r.stopped:
		return models.ProcessingStage{}, false
	}
	select {
	case resp := <-req.resp:
		return resp.stage, resp.ok
	case <-r.stopped:
		return models.ProcessingStage{}, false
	}
}

// Snapshot returns a copy of the whole stage table.
func (r *Registry) Snapshot() map[string]models.ProcessingStage {
	if r.closed.Load() {
		return map[string]models.ProcessingStage{}
	}
	resp := make(chan map[string]models.ProcessingStage, 1)
	select {
	case r.snapshotCh <- resp:
	case <-r.stopped:
		return map[string]models.ProcessingStage{}
	}
	select {
	case snap := <-resp:
		return snap
	case <-r.stopped:
		return map[string]models.ProcessingStage{}
	}
}

// Subscribe adds a new subscriber and returns its channel.
func (r *Registry) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if r.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case r.subscribeCh <- ch:
	case <-r.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (r *Registry) Unsubscribe(ch chan []byte) {
	if r.closed.Load() {
		return
	}
	select {
	case r.unsubscribeCh <- ch:
	case <-r.stopped:
	}
}

// SubscriberCount returns the number of connected subscribers.
func (r *Registry) SubscriberCount() int {
	if r.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case r.countReqCh <- resp:
	case <-r.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-r.stopped:
		return 0
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	ctx := req.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
