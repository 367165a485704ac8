package params

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/store"
)

// ParseError reports a stored snapshot that could not be decoded.
type ParseError struct {
	Origin string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed parameter snapshot for %s: %v", e.Origin, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Navigator moves the page to another address.
type Navigator interface {
	Navigate(ctx context.Context, address string) error
}

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// ValidClientID reports whether id can name a browser's snapshot. Pages
// generate the id once and keep it in their own storage.
func ValidClientID(id string) bool {
	return clientIDPattern.MatchString(id)
}

// SnapshotKey returns the storage key of one browser's snapshot.
func SnapshotKey(clientID string) string {
	return models.ParamSnapshotKey + ":" + clientID
}

// Snapshotter persists the parameter set of one browser on one page origin.
type Snapshotter struct {
	store  store.SnapshotStore
	origin string
	key    string
	nav    Navigator
}

// NewSnapshotter binds a snapshot store to the browser identified by
// clientID on a page origin. nav may be nil, in which case Clear only
// removes the snapshot.
func NewSnapshotter(st store.SnapshotStore, origin, clientID string, nav Navigator) *Snapshotter {
	return &Snapshotter{store: st, origin: origin, key: SnapshotKey(clientID), nav: nav}
}

// Persist writes the full set. Empty sets are ignored so an earlier
// non-empty snapshot is never replaced by an empty one.
func (s *Snapshotter) Persist(ctx context.Context, set *models.ParameterSet) error {
	if set.IsEmpty() {
		slog.Debug("Snapshotter.Persist: empty parameter set, keeping existing snapshot", "origin", s.origin)
		return nil
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode parameter snapshot: %w", err)
	}
	if err := s.store.SaveSnapshot(ctx, s.origin, s.key, string(data)); err != nil {
		return err
	}
	slog.Debug("Snapshotter.Persist: parameters saved", "origin", s.origin, "keys", set.Keys())
	return nil
}

// Restore reads the stored snapshot. It returns nil when nothing is stored;
// a malformed snapshot returns nil and a *ParseError.
func (s *Snapshotter) Restore(ctx context.Context) (*models.ParameterSet, error) {
	data, found, err := s.store.LoadSnapshot(ctx, s.origin, s.key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	set := models.NewParameterSet()
	if err := json.Unmarshal([]byte(data), set); err != nil {
		perr := &ParseError{Origin: s.origin, Err: err}
		slog.Error("Snapshotter.Restore: error parsing stored parameters", "error", perr)
		return nil, perr
	}
	slog.Debug("Snapshotter.Restore: loaded parameters", "origin", s.origin, "keys", set.Keys())
	return set, nil
}

// Clear removes the snapshot and sends the page to address without its query
// string, dropping all navigation state.
func (s *Snapshotter) Clear(ctx context.Context, address string) error {
	if err := s.store.DeleteSnapshot(ctx, s.origin, s.key); err != nil {
		return err
	}
	slog.Info("Snapshotter.Clear: stored parameters removed", "origin", s.origin)
	if s.nav == nil {
		return nil
	}
	return s.nav.Navigate(ctx, BaseAddress(address))
}
