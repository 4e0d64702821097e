package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"

	"spikeline/internal/domain"
	"spikeline/internal/ports"
)

const (
	roundsCollection  = "match_rounds"
	matchesCollection = "match_results"
	careerCollection  = "career"
	careerKey         = "stats_v1"

	// careerWriteAttempts bounds optimistic-concurrency retries on a contended career record.
	careerWriteAttempts = 3
)

// storageAPI is the slice of runtime.NakamaModule the storage adapter needs.
type storageAPI interface {
	StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error)
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
}

// CareerRecord is the per-user career document.
type CareerRecord struct {
	Callsign  string       `json:"callsign"`
	Matches   int          `json:"matches"`
	Wins      int          `json:"wins"`
	Losses    int          `json:"losses"`
	Draws     int          `json:"draws"`
	Stats     domain.Stats `json:"stats"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// apply folds one finished match into the record.
func (c *CareerRecord) apply(summary domain.MatchSummary, line domain.PlayerLine) {
	c.Matches++
	switch {
	case summary.Draw:
		c.Draws++
	case summary.WinnerTeam == line.Team:
		c.Wins++
	default:
		c.Losses++
	}
	c.Stats.Add(line.Stats)
	if c.Callsign == "" {
		c.Callsign = line.Name
	}
	c.UpdatedAt = summary.EndedAt
}

// NakamaStorageAdapter persists results and careers in Nakama storage.
// Round and match documents are system-owned and publicly readable; careers are owned by their user.
type NakamaStorageAdapter struct {
	nk  storageAPI
	now func() time.Time
}

// NewStorageResultStore creates a storage adapter backed by the Nakama module.
func NewStorageResultStore(nk runtime.NakamaModule) *NakamaStorageAdapter {
	return newStorageAdapter(nk)
}

func newStorageAdapter(nk storageAPI) *NakamaStorageAdapter {
	return &NakamaStorageAdapter{nk: nk, now: time.Now}
}

func (a *NakamaStorageAdapter) writeSystem(ctx context.Context, collection, key string, v interface{}) error {
	if a.nk == nil {
		return fmt.Errorf("nakama storage not available")
	}
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", collection, key, err)
	}
	_, err = a.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      collection,
		Key:             key,
		Value:           string(value),
		PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", collection, key, err)
	}
	return nil
}

// SaveRound stores a round result under "<match>-<round>".
func (a *NakamaStorageAdapter) SaveRound(ctx context.Context, result domain.RoundResult) error {
	return a.writeSystem(ctx, roundsCollection, fmt.Sprintf("%s-%03d", result.MatchID, result.Number), result)
}

// SaveMatch stores the summary and updates every player's career.
func (a *NakamaStorageAdapter) SaveMatch(ctx context.Context, summary domain.MatchSummary) error {
	if err := a.writeSystem(ctx, matchesCollection, summary.MatchID, summary); err != nil {
		return err
	}
	var errs []error
	for _, line := range summary.Players {
		if err := a.updateCareer(ctx, line.ID, func(c *CareerRecord) { c.apply(summary, line) }); err != nil {
			errs = append(errs, fmt.Errorf("career %s: %w", line.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Career reads a user's career. A missing record returns a zero record and an empty version.
func (a *NakamaStorageAdapter) Career(ctx context.Context, userID string) (CareerRecord, string, error) {
	var rec CareerRecord
	if a.nk == nil {
		return rec, "", fmt.Errorf("nakama storage not available")
	}
	objects, err := a.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: careerCollection,
		Key:        careerKey,
		UserID:     userID,
	}})
	if err != nil {
		return rec, "", fmt.Errorf("failed to read career: %w", err)
	}
	if len(objects) == 0 {
		return rec, "", nil
	}
	if err := json.Unmarshal([]byte(objects[0].GetValue()), &rec); err != nil {
		return rec, "", fmt.Errorf("failed to unmarshal career: %w", err)
	}
	return rec, objects[0].GetVersion(), nil
}

func (a *NakamaStorageAdapter) writeCareer(ctx context.Context, userID string, rec CareerRecord, version string) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal career: %w", err)
	}
	_, err = a.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      careerCollection,
		Key:             careerKey,
		UserID:          userID,
		Value:           string(value),
		Version:         version,
		PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	return err
}

// updateCareer applies fn under optimistic concurrency, retrying when another writer wins.
func (a *NakamaStorageAdapter) updateCareer(ctx context.Context, userID string, fn func(*CareerRecord)) error {
	for attempt := 0; attempt < careerWriteAttempts; attempt++ {
		rec, version, err := a.Career(ctx, userID)
		if err != nil {
			return err
		}
		if version == "" {
			// Only create if still absent.
			version = "*"
		}
		fn(&rec)
		err = a.writeCareer(ctx, userID, rec, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return fmt.Errorf("failed to write career: %w", err)
		}
	}
	return fmt.Errorf("career for %s is contended: %w", userID, runtime.ErrStorageRejectedVersion)
}

// InitCareer creates an empty career record once. An existing record is left untouched.
func (a *NakamaStorageAdapter) InitCareer(ctx context.Context, userID, callsign string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID is required")
	}
	if a.nk == nil {
		return false, fmt.Errorf("nakama storage not available")
	}
	rec := CareerRecord{Callsign: callsign, UpdatedAt: a.now().UTC()}
	if err := a.writeCareer(ctx, userID, rec, "*"); err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create career: %w", err)
	}
	return true, nil
}

var (
	_ ports.ResultStore = (*NakamaStorageAdapter)(nil)
	_ ports.CareerPort  = (*NakamaStorageAdapter)(nil)
)
