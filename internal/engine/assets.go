package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MRamiBalles/TowerMadness/internal/events"
)

// AssetFuture is generated content that may not be ready yet. Poll never blocks.
type AssetFuture interface {
	Poll() (handle string, done bool, err error)
}

// AssetRequester starts content generation in the background.
type AssetRequester interface {
	Request(key, description, style string) AssetFuture
}

// DefaultAsset is the placeholder shown until generated content arrives, or forever if
// generation fails.
func DefaultAsset(key string) string {
	return "default:" + key
}

// assetBoard tracks one future per content key and the handle currently shown for it.
type assetBoard struct {
	requester AssetRequester
	pending   map[string]AssetFuture
	handles   map[string]string
}

func newAssetBoard(r AssetRequester) *assetBoard {
	return &assetBoard{
		requester: r,
		pending:   make(map[string]AssetFuture),
		handles:   make(map[string]string),
	}
}

// request starts generation for key unless it is known already.
func (b *assetBoard) request(key, description, style string) {
	if b.requester == nil {
		return
	}
	if _, ok := b.handles[key]; ok {
		return
	}
	b.handles[key] = DefaultAsset(key)
	b.pending[key] = b.requester.Request(key, description, style)
}

// poll checks every pending future once, in key order.
func (b *assetBoard) poll(ti tickInfo, log *events.EventLog) {
	if len(b.pending) == 0 {
		return
	}
	keys := make([]string, 0, len(b.pending))
	for k := range b.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		handle, done, err := b.pending[key].Poll()
		if !done {
			continue
		}
		delete(b.pending, key)
		if err != nil {
			log.Append(ti.event(events.EventTypeAssetFailed, "content", key, err.Error()))
			continue
		}
		b.handles[key] = handle
		log.Append(ti.event(events.EventTypeAssetReady, "content", key, handle))
	}
}

// Pending reports how many futures are still running.
func (b *assetBoard) Pending() int { return len(b.pending) }

// requestAssets asks for a banner per running disaster kind and a sprite per named guest.
func (e *Engine) requestAssets() {
	if e.assets.requester == nil {
		return
	}
	for _, d := range e.scheduler.Active() {
		kind := string(d.Meta().Kind)
		e.assets.request("disaster:"+kind,
			fmt.Sprintf("%s alert banner for a tower elevator game", strings.ToLower(strings.ReplaceAll(kind, "_", " "))),
			"pixel-art")
	}
	for _, p := range e.passengers.All() {
		if p.Name == "" {
			continue
		}
		e.assets.request("sprite:"+p.Name,
			fmt.Sprintf("%s, a %s passenger waiting for the elevator", p.Name, strings.ToLower(string(p.Type))),
			"pixel-art")
	}
}
