package client

import (
	"context"
	"sync"
	"time"

	"collab-editor-api/internal/realtime"

	"github.com/rs/zerolog"
)

const (
	defaultDebounceInterval = time.Second
	defaultEchoGrace        = 100 * time.Millisecond
	saveTimeout             = 10 * time.Second
)

// Saver persists document content to the durable document store.
type Saver interface {
	SaveContent(ctx context.Context, documentID, content string) error
}

// Sender is the broadcast side of the pipeline, satisfied by *Session.
type Sender interface {
	Send(content string) error
	Connected() bool
}

// PipelineConfig configures an edit propagation pipeline.
type PipelineConfig struct {
	DocumentID string
	Sender     Sender
	Saver      Saver

	// DebounceInterval is how long after the last local edit the content is
	// persisted. Defaults to one second.
	DebounceInterval time.Duration
	// EchoGrace is how long the echo guard stays up after a network update
	// is applied, so the editor's own change notification for that update is
	// not mistaken for a new local edit. Defaults to 100ms.
	EchoGrace time.Duration

	// OnApply renders remotely received content into the editor.
	OnApply func(content string)
	// OnSaveResult observes every persistence attempt; a non-nil error is a
	// PersistenceFailure the user should see. There is no automatic retry:
	// the next edit or a manual save is the retry path.
	OnSaveResult func(err error)

	Logger zerolog.Logger
}

// Pipeline turns local edits into an immediate broadcast plus a debounced
// persistence write, and applies remote updates with echo suppression so a
// network-applied change is never re-broadcast as a new edit.
type Pipeline struct {
	cfg PipelineConfig

	mu        sync.Mutex
	content   string
	dirty     bool
	echo      bool
	saveTimer *time.Timer
	echoTimer *time.Timer
	closed    bool

	log zerolog.Logger
}

// NewPipeline builds a pipeline around a sender and a saver.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = defaultDebounceInterval
	}
	if cfg.EchoGrace <= 0 {
		cfg.EchoGrace = defaultEchoGrace
	}
	return &Pipeline{
		cfg: cfg,
		log: cfg.Logger.With().
			Str("component", "pipeline").
			Str("document_id", cfg.DocumentID).
			Logger(),
	}
}

// OnLocalEdit handles new content produced by the editor: broadcast now,
// persist after the debounce interval. Suppressed entirely while the echo
// guard is up.
func (p *Pipeline) OnLocalEdit(content string) {
	p.mu.Lock()
	if p.echo || p.closed {
		p.mu.Unlock()
		return
	}
	p.content = content
	p.dirty = true
	if p.saveTimer != nil {
		p.saveTimer.Stop()
	}
	p.saveTimer = time.AfterFunc(p.cfg.DebounceInterval, p.flush)
	p.mu.Unlock()

	if p.cfg.Sender != nil && p.cfg.Sender.Connected() {
		if err := p.cfg.Sender.Send(content); err != nil {
			// Best effort: peers catch up from live state on reconnect.
			p.log.Warn().Err(err).Msg("broadcast failed")
		}
	}
}

// ApplyRemote applies a document-state or content-change event. Content
// identical to the local state is ignored; otherwise the echo guard goes up
// for the grace window while the new content is handed to the editor.
func (p *Pipeline) ApplyRemote(ev *realtime.Event) {
	if ev == nil || (ev.Type != realtime.EventDocumentState && ev.Type != realtime.EventContentChange) {
		return
	}

	p.mu.Lock()
	if p.closed || ev.Content == p.content {
		p.mu.Unlock()
		return
	}
	p.content = ev.Content
	p.dirty = false
	p.echo = true
	if p.echoTimer != nil {
		p.echoTimer.Stop()
	}
	p.echoTimer = time.AfterFunc(p.cfg.EchoGrace, func() {
		p.mu.Lock()
		p.echo = false
		p.mu.Unlock()
	})
	p.mu.Unlock()

	if p.cfg.OnApply != nil {
		p.cfg.OnApply(ev.Content)
	}
}

// SaveNow bypasses the debounce timer and persists immediately. A closed
// pipeline no longer writes anything.
func (p *Pipeline) SaveNow() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	if p.saveTimer != nil {
		p.saveTimer.Stop()
	}
	content := p.content
	p.mu.Unlock()
	return p.save(content)
}

// Dirty reports whether there are local edits not yet persisted.
func (p *Pipeline) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// Content returns the pipeline's view of the document.
func (p *Pipeline) Content() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content
}

// Close cancels the pending debounce and echo timers. Unsaved content is not
// flushed; callers wanting a final write use SaveNow first.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.saveTimer != nil {
		p.saveTimer.Stop()
	}
	if p.echoTimer != nil {
		p.echoTimer.Stop()
	}
}

// flush is the debounce timer callback.
func (p *Pipeline) flush() {
	p.mu.Lock()
	if p.closed || !p.dirty {
		p.mu.Unlock()
		return
	}
	content := p.content
	p.mu.Unlock()
	_ = p.save(content)
}

func (p *Pipeline) save(content string) error {
	if p.cfg.Saver == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := p.cfg.Saver.SaveContent(ctx, p.cfg.DocumentID, content)
	if err != nil {
		p.log.Warn().Err(err).Msg("save failed")
	} else {
		p.mu.Lock()
		// Only clear the flag if no newer edit arrived while saving.
		if p.content == content {
			p.dirty = false
		}
		p.mu.Unlock()
	}
	if p.cfg.OnSaveResult != nil {
		p.cfg.OnSaveResult(err)
	}
	return err
}
