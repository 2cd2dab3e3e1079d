package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/model"
)

// DraftMetrics receives draft cache activity. *observability.Metrics
// satisfies it.
type DraftMetrics interface {
	RecordDraftWrite(outcome string)
	RecordDraftRecovery()
	RecordDraftDiscard()
}

type nopDraftMetrics struct{}

func (nopDraftMetrics) RecordDraftWrite(string) {}
func (nopDraftMetrics) RecordDraftRecovery()    {}
func (nopDraftMetrics) RecordDraftDiscard()     {}

// BridgeOption configures optional bridge behavior.
type BridgeOption func(*Bridge)

// WithDraftMetrics records draft activity on the given instruments.
func WithDraftMetrics(m DraftMetrics) BridgeOption {
	return func(b *Bridge) {
		if m != nil {
			b.metrics = m
		}
	}
}

// Bridge connects one editing session to durable storage. Edits are written
// through to the draft cache immediately; the record itself is saved on
// demand with single-slot coalescing, so at most one store write runs at a
// time and a burst of save requests collapses into the latest state.
type Bridge struct {
	store     FormStore
	drafts    DraftCache
	ids       identifier.Generator
	logger    *zap.Logger
	metrics   DraftMetrics
	staleness time.Duration

	mu      sync.Mutex
	rec     model.FormRecord
	isNew   bool
	dirty   bool
	saving  bool
	pending bool
}

// NewBridge creates a bridge. Drafts older than staleness are discarded on
// initialization; zero keeps drafts indefinitely.
func NewBridge(store FormStore, drafts DraftCache, ids identifier.Generator,
	logger *zap.Logger, staleness time.Duration, opts ...BridgeOption) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		store:     store,
		drafts:    drafts,
		ids:       ids,
		logger:    logger,
		metrics:   nopDraftMetrics{},
		staleness: staleness,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewForm starts a session on a brand-new record. Nothing is persisted
// until the first save; until then the draft cache is the only copy.
func (b *Bridge) NewForm(_ context.Context, userID string) model.FormRecord {
	rec := model.FormRecord{
		ID:               b.ids.FormID(),
		Title:            "Untitled form",
		Layout:           model.LayoutVertical,
		Spacing:          model.SpacingNormal,
		Mode:             model.ModeEdit,
		ValidateOnSubmit: true,
		UserID:           userID,
		Steps:            []model.FormStep{},
	}
	b.mu.Lock()
	b.rec = rec
	b.isNew = true
	b.dirty = false
	b.mu.Unlock()
	return rec
}

// Initialize loads a session for an existing form id, preferring a fresh
// draft over the stored record. It reports whether the draft won.
func (b *Bridge) Initialize(ctx context.Context, formID string) (model.FormRecord, bool, error) {
	entry, found, err := b.drafts.Get(ctx, formID)
	if err != nil {
		b.logger.Warn("draft cache unavailable, loading stored record",
			zap.String("form_id", formID), zap.Error(err))
		found = false
	}
	if found && b.staleness > 0 && entry.Age() > b.staleness {
		b.logger.Info("discarding stale draft",
			zap.String("form_id", formID), zap.Duration("age", entry.Age()))
		if err := b.drafts.Clear(ctx, formID); err != nil {
			b.logger.Warn("clear stale draft", zap.Error(err))
		}
		b.metrics.RecordDraftDiscard()
		found = false
	}

	if found && entry.IsNew {
		// never saved: the draft is all there is
		rec := model.FormRecord{
			ID:      entry.Config.ID,
			Title:   entry.Config.Title,
			Layout:  entry.Config.Layout,
			Spacing: entry.Config.Spacing,
			Mode:    model.ModeEdit,
			Steps:   entry.Config.Steps,
		}
		rec.Description = entry.Config.Description
		b.mu.Lock()
		b.rec = rec
		b.isNew = true
		b.dirty = true
		b.mu.Unlock()
		b.metrics.RecordDraftRecovery()
		return rec, true, nil
	}

	rec, err := b.store.Get(ctx, formID)
	if err != nil {
		return model.FormRecord{}, false, err
	}
	fromDraft := false
	if found {
		applyConfig(&rec, entry.Config)
		fromDraft = true
	}
	b.mu.Lock()
	b.rec = rec
	b.isNew = false
	b.dirty = fromDraft
	b.mu.Unlock()
	if fromDraft {
		b.metrics.RecordDraftRecovery()
	}
	return rec, fromDraft, nil
}

// Record returns the session's current record.
func (b *Bridge) Record() model.FormRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return snapshot(&b.rec)
}

// Dirty reports whether there are unsaved changes.
func (b *Bridge) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// Saving reports whether a store write is in flight.
func (b *Bridge) Saving() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saving
}

// MarkDirty merges the working configuration into the session record and
// writes it through to the draft cache.
func (b *Bridge) MarkDirty(ctx context.Context, cfg model.FormConfig) error {
	b.mu.Lock()
	applyConfig(&b.rec, cfg)
	b.dirty = true
	entry := DraftEntry{
		Config:    b.rec.Config(),
		Timestamp: time.Now().UnixMilli(),
		IsNew:     b.isNew,
	}
	formID := b.rec.ID
	b.mu.Unlock()

	if err := b.drafts.Put(ctx, formID, entry); err != nil {
		// the in-memory record still holds the edit; only crash recovery
		// is degraded
		b.logger.Warn("draft write failed", zap.String("form_id", formID), zap.Error(err))
		b.metrics.RecordDraftWrite("failure")
		return err
	}
	b.metrics.RecordDraftWrite("success")
	return nil
}

// UpdateMeta edits record metadata outside the configuration tree (button
// texts, validation toggles, template flags) and marks the session dirty.
func (b *Bridge) UpdateMeta(ctx context.Context, update func(*model.FormRecord)) error {
	b.mu.Lock()
	update(&b.rec)
	cfg := b.rec.Config()
	b.mu.Unlock()
	return b.MarkDirty(ctx, cfg)
}

// Save persists the session record: a create on first save, an update after
// that. When a save is already running the call returns immediately and the
// running save picks up the newest state before finishing. On success the
// draft is cleared; on failure it is kept so nothing is lost.
func (b *Bridge) Save(ctx context.Context) error {
	b.mu.Lock()
	if b.saving {
		b.pending = true
		b.mu.Unlock()
		return nil
	}
	b.saving = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.saving = false
		b.mu.Unlock()
	}()

	for {
		b.mu.Lock()
		b.pending = false
		rec := snapshot(&b.rec)
		isNew := b.isNew
		b.mu.Unlock()

		var err error
		if isNew {
			err = b.store.Create(ctx, &rec)
		} else {
			err = b.store.Update(ctx, &rec)
		}

		b.mu.Lock()
		if b.rec.ID != rec.ID {
			// the session moved to another form while this save ran;
			// its outcome no longer applies
			b.mu.Unlock()
			return nil
		}
		if err != nil {
			b.mu.Unlock()
			return err
		}
		b.rec.CreatedAt = rec.CreatedAt
		b.rec.UpdatedAt = rec.UpdatedAt
		b.isNew = false
		again := b.pending
		if !again {
			b.dirty = false
		}
		b.mu.Unlock()

		if !again {
			if err := b.drafts.Clear(ctx, rec.ID); err != nil {
				b.logger.Warn("clear draft after save", zap.String("form_id", rec.ID), zap.Error(err))
			}
			return nil
		}
	}
}

// applyConfig overlays the configuration tree onto a record.
func applyConfig(rec *model.FormRecord, cfg model.FormConfig) {
	rec.Title = cfg.Title
	rec.Description = cfg.Description
	rec.Layout = cfg.Layout
	rec.Spacing = cfg.Spacing
	rec.Steps = cfg.Clone().Steps
}
