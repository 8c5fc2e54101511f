// Package state persists per-stream bookmarks. A bookmark is a single
// timestamp cursor meaning "records created at or after this instant have
// not yet been confirmed synced". The store is written through after every
// committed window, so a restart redoes at most one partial window.
//
// Which field anchors the bookmark has varied across deployments, so the
// store takes a bookmark-key policy: a primary key plus an ordered list of
// legacy keys honored on read for backward compatibility. Writes always
// land under the primary key.
package state

import (
	"context"
)

// DefaultBookmarkKey is the primary bookmark field.
const DefaultBookmarkKey = "created_at"

// DefaultLegacyKeys are honored on read when the primary key is absent.
var DefaultLegacyKeys = []string{"modifyDate"}

// Store persists stream bookmarks. Implementations must write through on
// SetBookmark; batching would widen the redo window on restart.
type Store interface {
	// Bookmark returns the stored cursor for a stream, consulting the
	// primary bookmark key first and legacy keys in order after it.
	Bookmark(ctx context.Context, stream string) (string, bool, error)

	// SetBookmark persists the cursor for a stream under the primary key.
	SetBookmark(ctx context.Context, stream, value string) error

	// Snapshot returns all bookmarks keyed by stream then bookmark field,
	// for state emission downstream.
	Snapshot(ctx context.Context) (map[string]map[string]string, error)
}

// Policy is the bookmark-key policy shared by the store backends.
type Policy struct {
	// BookmarkKey is the field written on every commit.
	BookmarkKey string

	// LegacyKeys are consulted on read, in order, when BookmarkKey holds
	// no value for the stream.
	LegacyKeys []string
}

// DefaultPolicy returns the standard bookmark-key policy.
func DefaultPolicy() Policy {
	return Policy{
		BookmarkKey: DefaultBookmarkKey,
		LegacyKeys:  DefaultLegacyKeys,
	}
}

func (p *Policy) normalize() {
	if p.BookmarkKey == "" {
		p.BookmarkKey = DefaultBookmarkKey
	}
}

// lookup applies the key policy to one stream's bookmark fields.
func (p Policy) lookup(fields map[string]string) (string, bool) {
	if v, ok := fields[p.BookmarkKey]; ok && v != "" {
		return v, true
	}
	for _, key := range p.LegacyKeys {
		if v, ok := fields[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}
