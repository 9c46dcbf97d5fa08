package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/opencollab/litemono/internal/store"
)

// Assignments maps source author ids to pool peers so the same author is
// always attributed to the same synthetic peer across issues and across
// resumed runs. New authors go to the least-loaded peer, ties broken by
// lowest index, which keeps the distribution deterministic.
type Assignments struct {
	mu       sync.Mutex
	path     string
	pool     *Pool
	byAuthor map[string]string // source author id -> peer DID
}

// LoadAssignments reads the persisted assignment map, or starts empty if the
// file does not exist.
func LoadAssignments(path string, pool *Pool) (*Assignments, error) {
	a := &Assignments{
		path:     path,
		pool:     pool,
		byAuthor: make(map[string]string),
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read peer map: %w", err)
	}
	if err := json.Unmarshal(data, &a.byAuthor); err != nil {
		return nil, fmt.Errorf("parse peer map: %w", err)
	}
	return a, nil
}

// Assign returns the peer for a source author id, creating and persisting a
// new assignment when the author has not been seen before.
func (a *Assignments) Assign(authorID int64) (*Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := strconv.FormatInt(authorID, 10)
	if did, ok := a.byAuthor[key]; ok {
		id, ok := a.pool.ByDID(did)
		if !ok {
			return nil, fmt.Errorf("peer map entry %s references unknown peer %s: %w", key, did, ErrPoolExhausted)
		}
		return id, nil
	}

	id := a.leastLoaded()
	a.byAuthor[key] = id.DID

	data, err := json.Marshal(a.byAuthor)
	if err != nil {
		return nil, fmt.Errorf("encode peer map: %w", err)
	}
	if err := store.SafeWrite(a.path, data, 0644); err != nil {
		return nil, fmt.Errorf("persist peer map: %w", err)
	}
	return id, nil
}

// leastLoaded picks the peer with the fewest assigned authors, lowest index
// first. Caller holds a.mu.
func (a *Assignments) leastLoaded() *Identity {
	counts := make(map[string]int)
	for _, did := range a.byAuthor {
		counts[did]++
	}
	best := a.pool.ids[0]
	bestCount := counts[best.DID]
	for _, id := range a.pool.ids[1:] {
		if counts[id.DID] < bestCount {
			best = id
			bestCount = counts[id.DID]
		}
	}
	return best
}
