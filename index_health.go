package reservebase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// IndexHealer rebuilds the KV secondary indexes from a full scan of the
// primary documents and detects drift between the two.
//
// The indexes are maintained best-effort on the write path, so they fall
// behind whenever an advisory write is dropped. The healer closes that gap:
// run Heal during off-peak hours, or Start the background monitor to check
// for drift periodically.
type IndexHealer struct {
	store   *Store
	indexes *IndexManager
	logger  Logger
	metrics Metrics

	checkInterval  time.Duration
	driftThreshold float64

	running  bool
	stopChan chan struct{}
	mu       sync.Mutex
}

// IndexDriftReport contains the results of one drift check
type IndexDriftReport struct {
	Timestamp       time.Time
	TotalDocuments  int
	MissingEntries  int
	StaleEntries    int
	DriftPercentage float64
}

// NewIndexHealer creates a healer over the store
func NewIndexHealer(store *Store, indexes *IndexManager) *IndexHealer {
	return &IndexHealer{
		store:          store,
		indexes:        indexes,
		logger:         store.logger,
		metrics:        store.metrics,
		checkInterval:  5 * time.Minute,
		driftThreshold: 5.0,
		stopChan:       make(chan struct{}),
	}
}

// WithInterval sets the background check interval
func (h *IndexHealer) WithInterval(interval time.Duration) *IndexHealer {
	h.checkInterval = interval
	return h
}

// WithDriftThreshold sets the drift percentage that triggers an alert log
func (h *IndexHealer) WithDriftThreshold(threshold float64) *IndexHealer {
	h.driftThreshold = threshold
	return h
}

// Heal rebuilds every secondary index from the primary documents: the role
// indexes from a user scan, then the global, per-user, and per-reservation
// indexes from a reservation and log scan. Each index document is replaced
// wholesale, which also drops stale ids left behind by deletes.
func (h *IndexHealer) Heal(ctx context.Context) error {
	if err := h.healRoleIndexes(ctx); err != nil {
		return err
	}
	if err := h.healReservationIndexes(ctx); err != nil {
		return err
	}
	if err := h.healLogIndexes(ctx); err != nil {
		return err
	}
	h.logger.Info("index heal completed")
	return nil
}

func (h *IndexHealer) healRoleIndexes(ctx context.Context) error {
	byRole := map[string][]string{}

	err := h.scan(ctx, UserKeyPrefix, func(key string, data []byte) {
		var user User
		if json.Unmarshal(data, &user) != nil || user.Role == "" {
			return
		}
		byRole[user.Role] = append(byRole[user.Role], user.ID)
	})
	if err != nil {
		return err
	}

	for role, ids := range byRole {
		if err := h.indexes.RebuildIndex(ctx, RoleIndexKey(role), ids); err != nil {
			return fmt.Errorf("rebuilding role index %q: %w", role, err)
		}
	}
	return nil
}

func (h *IndexHealer) healReservationIndexes(ctx context.Context) error {
	var all []string
	byUser := map[string][]string{}

	err := h.scan(ctx, ReservationKeyPrefix, func(key string, data []byte) {
		var res Reservation
		if json.Unmarshal(data, &res) != nil || res.ID == "" {
			return
		}
		all = append(all, res.ID)
		if res.CreatedBy != "" {
			byUser[res.CreatedBy] = append(byUser[res.CreatedBy], res.ID)
		}
	})
	if err != nil {
		return err
	}

	if err := h.indexes.RebuildIndex(ctx, GlobalReservationsIndexKey, all); err != nil {
		return fmt.Errorf("rebuilding global reservations index: %w", err)
	}
	for userID, ids := range byUser {
		if err := h.indexes.RebuildIndex(ctx, UserReservationsIndexKey(userID), ids); err != nil {
			return fmt.Errorf("rebuilding user reservations index %q: %w", userID, err)
		}
	}
	return nil
}

func (h *IndexHealer) healLogIndexes(ctx context.Context) error {
	byReservation := map[string][]string{}

	err := h.scan(ctx, LogKeyPrefix, func(key string, data []byte) {
		var entry ChangeLog
		if json.Unmarshal(data, &entry) != nil || entry.ReservationID == "" {
			return
		}
		byReservation[entry.ReservationID] = append(byReservation[entry.ReservationID], entry.ID)
	})
	if err != nil {
		return err
	}

	for reservationID, ids := range byReservation {
		if err := h.indexes.RebuildIndex(ctx, ReservationLogsIndexKey(reservationID), ids); err != nil {
			return fmt.Errorf("rebuilding reservation logs index %q: %w", reservationID, err)
		}
	}
	return nil
}

// Check measures drift on the global reservations index: reservations the
// index is missing, and index entries whose document is gone
func (h *IndexHealer) Check(ctx context.Context) (*IndexDriftReport, error) {
	report := &IndexDriftReport{Timestamp: time.Now()}

	indexed, err := h.indexes.ReadIndex(ctx, GlobalReservationsIndexKey)
	if err != nil {
		return nil, err
	}
	indexedSet := make(map[string]bool, len(indexed))
	for _, id := range indexed {
		indexedSet[id] = true
	}

	present := map[string]bool{}
	err = h.scan(ctx, ReservationKeyPrefix, func(key string, data []byte) {
		report.TotalDocuments++
		present[key] = true
		if !indexedSet[key] {
			report.MissingEntries++
		}
	})
	if err != nil {
		return nil, err
	}

	for _, id := range indexed {
		if !present[id] {
			report.StaleEntries++
		}
	}

	if report.TotalDocuments > 0 {
		problems := report.MissingEntries + report.StaleEntries
		report.DriftPercentage = float64(problems) / float64(report.TotalDocuments) * 100.0
	}
	return report, nil
}

// Start begins periodic drift checking in the background
func (h *IndexHealer) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return fmt.Errorf("index healer already running")
	}
	h.running = true

	go func() {
		ticker := time.NewTicker(h.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				h.logger.Info("index healer stopped", "reason", "context canceled")
				return
			case <-h.stopChan:
				h.logger.Info("index healer stopped", "reason", "stop requested")
				return
			case <-ticker.C:
				report, err := h.Check(ctx)
				if err != nil {
					h.logger.Error("index drift check failed", "error", err)
					continue
				}
				h.processReport(report)
			}
		}
	}()

	h.logger.Info("index healer started",
		"interval", h.checkInterval,
		"drift_threshold", h.driftThreshold,
	)
	return nil
}

// Stop halts the background checking
func (h *IndexHealer) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		close(h.stopChan)
		h.running = false
	}
}

func (h *IndexHealer) processReport(report *IndexDriftReport) {
	h.metrics.Gauge("reservebase.index.drift", report.DriftPercentage)
	h.metrics.Gauge("reservebase.index.missing", float64(report.MissingEntries))
	h.metrics.Gauge("reservebase.index.stale", float64(report.StaleEntries))

	if report.DriftPercentage > h.driftThreshold {
		h.logger.Error("index drift detected",
			"drift_percent", report.DriftPercentage,
			"missing", report.MissingEntries,
			"stale", report.StaleEntries,
			"documents", report.TotalDocuments,
		)
	} else {
		h.logger.Debug("index drift check passed",
			"drift_percent", report.DriftPercentage,
			"documents", report.TotalDocuments,
		)
	}
}

func (h *IndexHealer) scan(ctx context.Context, prefix string, visit func(key string, data []byte)) error {
	keys, err := h.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	for _, key := range keys {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := h.store.Backend().Get(ctx, key)
		if err != nil {
			// Deleted between list and get
			continue
		}
		visit(key, data)
	}
	return nil
}
