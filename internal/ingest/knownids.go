package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// IDLoader loads the registered identifier sets from the store.
// *database.DB satisfies it.
type IDLoader interface {
	KnownAnchorIDs(ctx context.Context) (map[string]struct{}, error)
	KnownWearableUIDs(ctx context.Context) (map[string]struct{}, error)
}

// KnownIDs is the in-memory snapshot of registered anchor and wearable
// identifiers used to pre-filter bus traffic before insertion. It is read by
// batch flushes and rewritten by EnsureFresh; both sets swap atomically under
// one lock so readers never see a half-refreshed snapshot.
type KnownIDs struct {
	loader       IDLoader
	refreshEvery time.Duration
	log          zerolog.Logger

	mu        sync.RWMutex
	anchors   map[string]struct{}
	wearables map[string]struct{}
	lastLoad  time.Time
}

func NewKnownIDs(loader IDLoader, refreshEvery time.Duration, log zerolog.Logger) *KnownIDs {
	return &KnownIDs{
		loader:       loader,
		refreshEvery: refreshEvery,
		log:          log,
		anchors:      map[string]struct{}{},
		wearables:    map[string]struct{}{},
	}
}

// Load replaces both sets from the store unconditionally.
func (k *KnownIDs) Load(ctx context.Context) error {
	anchors, err := k.loader.KnownAnchorIDs(ctx)
	if err != nil {
		return err
	}
	wearables, err := k.loader.KnownWearableUIDs(ctx)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.anchors = anchors
	k.wearables = wearables
	k.lastLoad = time.Now()
	k.mu.Unlock()

	k.log.Info().
		Int("anchors", len(anchors)).
		Int("wearables", len(wearables)).
		Msg("loaded known ids")
	return nil
}

// EnsureFresh reloads both sets when the snapshot is older than the refresh
// interval. Reloads are best-effort: on failure the previous snapshot stays
// in place and rows with FKs registered since then are dropped until the next
// successful refresh.
func (k *KnownIDs) EnsureFresh(ctx context.Context) {
	k.mu.RLock()
	stale := time.Since(k.lastLoad) >= k.refreshEvery
	k.mu.RUnlock()
	if !stale {
		return
	}
	if err := k.Load(ctx); err != nil {
		k.log.Warn().Err(err).Msg("known id refresh failed, keeping previous snapshot")
	}
}

// KnownAnchor reports whether the anchor id is registered.
func (k *KnownIDs) KnownAnchor(id string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.anchors[id]
	return ok
}

// KnownWearable reports whether the wearable uid is registered.
func (k *KnownIDs) KnownWearable(uid string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.wearables[uid]
	return ok
}

// KnownScan reports whether both FKs of a scan are registered.
func (k *KnownIDs) KnownScan(anchorID, uid string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, a := k.anchors[anchorID]
	_, w := k.wearables[uid]
	return a && w
}
