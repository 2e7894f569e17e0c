// Package library holds the document-list state behind every front end: the
// ordered names, their thumbnail handles, the search filter and the selection.
package library

import (
	"context"
	"log/slog"
	"sync"

	"shelf-cli/internal/backend"
	"shelf-cli/internal/blob"
	"shelf-cli/internal/logging"

	"golang.org/x/sync/errgroup"
)

// Source is the subset of the library server a Library reads from.
type Source interface {
	ListDocuments(ctx context.Context) ([]string, error)
	Thumbnail(ctx context.Context, name string) (backend.Payload, error)
}

type State int

const (
	// StateEmpty: the list has not been loaded (or the load failed).
	StateEmpty State = iota
	// StateListed: names are known, thumbnails are pending.
	StateListed
	// StateThumbnails: the thumbnail pass finished; some entries may be missing.
	StateThumbnails
)

func (s State) String() string {
	switch s {
	case StateListed:
		return "listed"
	case StateThumbnails:
		return "thumbnails"
	default:
		return "empty"
	}
}

type Options struct {
	// Concurrency caps in-flight thumbnail requests. 1 fetches sequentially.
	Concurrency int
	ThumbWidth  uint
	ThumbHeight uint

	Blobs  *blob.Registry
	Logger *slog.Logger

	// OnChange runs after every committed change, outside the lock. It must not block.
	OnChange func()
}

type Library struct {
	src         Source
	blobs       *blob.Registry
	log         *slog.Logger
	concurrency int
	thumbW      uint
	thumbH      uint
	onChange    func()

	mu       sync.RWMutex
	docs     []string
	thumbs   map[string]blob.Handle
	selected string
	state    State
	lastErr  error

	// Each load sequence gets a generation and a cancel func; results from an
	// older generation are dropped and their handles revoked.
	gen    uint64
	seqCtx context.Context
	cancel context.CancelFunc
}

// Snapshot is a consistent copy of the library for rendering.
type Snapshot struct {
	State      State
	Documents  []string
	Thumbnails map[string]blob.Handle
	Selected   string
	Err        error
}

func New(src Source, opts Options) *Library {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.ThumbWidth == 0 {
		opts.ThumbWidth = DefaultThumbWidth
	}
	if opts.ThumbHeight == 0 {
		opts.ThumbHeight = DefaultThumbHeight
	}
	if opts.Blobs == nil {
		opts.Blobs = blob.NewRegistry()
	}
	return &Library{
		src:         src,
		blobs:       opts.Blobs,
		log:         logging.OrDiscard(opts.Logger),
		concurrency: opts.Concurrency,
		thumbW:      opts.ThumbWidth,
		thumbH:      opts.ThumbHeight,
		onChange:    opts.OnChange,
		thumbs:      map[string]blob.Handle{},
	}
}

// Blobs is the registry holding this library's thumbnail bytes.
func (l *Library) Blobs() *blob.Registry { return l.blobs }

// Load runs the mount sequence: the list, then thumbnails for every name.
func (l *Library) Load(ctx context.Context) {
	names := l.LoadDocumentList(ctx)
	if l.State() != StateListed {
		return
	}
	// An empty list still completes the sequence.
	l.LoadThumbnails(ctx, names)
}

// Refresh drops everything held (handles included) and runs Load again.
func (l *Library) Refresh(ctx context.Context) {
	l.Load(ctx)
}

// LoadDocumentList starts a new load sequence and fetches the names.
// On failure the list stays empty, the error is logged and kept for LastError.
func (l *Library) LoadDocumentList(ctx context.Context) []string {
	gen, seq := l.begin()
	ctx, done := withSequence(ctx, seq)
	defer done()

	names, err := l.src.ListDocuments(ctx)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		l.lastErr = err
		l.mu.Unlock()
		l.log.Error("load document list", "err", err)
		l.changed()
		return nil
	}
	l.docs = append([]string(nil), names...)
	l.state = StateListed
	out := append([]string(nil), l.docs...)
	l.mu.Unlock()

	l.log.Info("document list loaded", "count", len(out))
	l.changed()
	return out
}

// LoadThumbnails fetches one thumbnail per name with at most Concurrency
// requests in flight. A failed item gets no entry; the pass never aborts.
// The returned map holds the handles committed by this call.
func (l *Library) LoadThumbnails(ctx context.Context, names []string) map[string]blob.Handle {
	l.mu.RLock()
	gen, seq := l.gen, l.seqCtx
	l.mu.RUnlock()
	ctx, done := withSequence(ctx, seq)
	defer done()

	var (
		mu  sync.Mutex
		got = map[string]blob.Handle{}
	)
	g := new(errgroup.Group)
	g.SetLimit(l.concurrency)
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			p, err := l.src.Thumbnail(ctx, name)
			if err != nil {
				l.log.Warn("thumbnail unavailable", "doc", name, "err", err)
				return nil
			}
			data, ct := normalizeThumbnail(p.Data, p.ContentType, l.thumbW, l.thumbH)
			h := l.blobs.Create(data, ct)
			mu.Lock()
			got[name] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	l.mu.Lock()
	if gen != l.gen || ctx.Err() != nil {
		l.mu.Unlock()
		for _, h := range got {
			l.blobs.Revoke(h.ID)
		}
		l.log.Debug("discarded thumbnails from abandoned load", "count", len(got))
		return map[string]blob.Handle{}
	}
	listed := make(map[string]bool, len(l.docs))
	for _, d := range l.docs {
		listed[d] = true
	}
	for name, h := range got {
		if !listed[name] {
			l.blobs.Revoke(h.ID)
			delete(got, name)
			continue
		}
		if old, ok := l.thumbs[name]; ok {
			l.blobs.Revoke(old.ID)
		}
		l.thumbs[name] = h
	}
	if l.state == StateListed {
		l.state = StateThumbnails
	}
	l.mu.Unlock()

	l.log.Info("thumbnails loaded", "loaded", len(got), "requested", len(seen))
	l.changed()

	out := make(map[string]blob.Handle, len(got))
	for k, v := range got {
		out[k] = v
	}
	return out
}

// Close abandons any in-flight load and releases every handle.
func (l *Library) Close() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.seqCtx = nil
	l.gen++
	l.releaseLocked()
	l.docs = nil
	l.selected = ""
	l.state = StateEmpty
	l.lastErr = nil
	l.mu.Unlock()
	l.changed()
}

func (l *Library) begin() (uint64, context.Context) {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	seq, cancel := context.WithCancel(context.Background())
	l.seqCtx, l.cancel = seq, cancel
	l.releaseLocked()
	l.docs = nil
	l.state = StateEmpty
	l.lastErr = nil
	gen := l.gen
	l.mu.Unlock()
	l.changed()
	return gen, seq
}

func (l *Library) releaseLocked() {
	for _, h := range l.thumbs {
		l.blobs.Revoke(h.ID)
	}
	l.thumbs = map[string]blob.Handle{}
}

func (l *Library) changed() {
	if l.onChange != nil {
		l.onChange()
	}
}

// withSequence derives a context that is cancelled when either parent or seq is.
func withSequence(parent, seq context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if seq == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(seq, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Documents returns the loaded names in server order.
func (l *Library) Documents() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.docs...)
}

// Filter applies a case-insensitive substring search to the loaded names.
func (l *Library) Filter(term string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Filter(l.docs, term)
}

func (l *Library) Thumbnail(name string) (blob.Handle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.thumbs[name]
	return h, ok
}

func (l *Library) Thumbnails() map[string]blob.Handle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]blob.Handle, len(l.thumbs))
	for k, v := range l.thumbs {
		out[k] = v
	}
	return out
}

func (l *Library) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// LastError is the list-load failure of the current sequence, if any.
func (l *Library) LastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

// Select marks name as the open document. Names not in the list are refused
// and leave the selection unchanged.
func (l *Library) Select(name string) bool {
	l.mu.Lock()
	if !containsLocked(l.docs, name) {
		l.mu.Unlock()
		return false
	}
	l.selected = name
	l.mu.Unlock()
	l.changed()
	return true
}

// Clear closes the viewer. Clearing with nothing selected is a no-op.
func (l *Library) Clear() {
	l.mu.Lock()
	if l.selected == "" {
		l.mu.Unlock()
		return
	}
	l.selected = ""
	l.mu.Unlock()
	l.changed()
}

// Selected returns the open document. A selection that no longer names a
// listed document reads as closed.
func (l *Library) Selected() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.selected == "" || !containsLocked(l.docs, l.selected) {
		return "", false
	}
	return l.selected, true
}

func (l *Library) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Snapshot{
		State:      l.state,
		Documents:  append([]string(nil), l.docs...),
		Thumbnails: make(map[string]blob.Handle, len(l.thumbs)),
		Err:        l.lastErr,
	}
	for k, v := range l.thumbs {
		s.Thumbnails[k] = v
	}
	if l.selected != "" && containsLocked(l.docs, l.selected) {
		s.Selected = l.selected
	}
	return s
}

func containsLocked(docs []string, name string) bool {
	for _, d := range docs {
		if d == name {
			return true
		}
	}
	return false
}
