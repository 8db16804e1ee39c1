package sale_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/quicksale"
	"ktu-bizconnect/internal/quicksale/countdown"
	"ktu-bizconnect/internal/utils"
)

// Events streams a sale's live feed: a tick with the countdown every TickInterval, bids and
// finalization as they happen, and one ended event when the countdown runs out. It only
// informs the page; bids are still checked against the database.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "streaming unsupported", "INTERNAL", "")
		return
	}

	ctx := r.Context()
	sale, err := h.Service.GetSale(ctx, id)
	if err != nil {
		h.writeError(w, "Events", err)
		return
	}

	// subscribe before the first snapshot so no bid slips between them
	events := h.Emitter.Subscribe(ctx, id)

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	clock := countdown.New(sale.EndsAt, h.Service.Now)
	snapshot := func() countdown.Snapshot {
		snap := clock.Tick()
		if snap.State == countdown.Ended {
			return snap
		}
		return quicksale.SnapshotFor(sale, snap.ServerTime)
	}

	first := snapshot()
	endedSent := first.State == countdown.Ended
	if err := writeEvent(w, "connected", h.tickEvent(sale, first)); err != nil {
		return
	}
	flusher.Flush()
	h.Logger.Debug("SSE", fmt.Sprintf("Client connected to quick sale events for: %s (%d watching)", id, h.Emitter.ClientCount(id)))

	interval := h.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from quick sale events for: %s", id))
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			switch event.Type {
			case models.EventBidPlaced:
				err = writeEvent(w, "bid", event)
			case models.EventSaleFinalized:
				if event.Finalize != nil {
					sale.Status = event.Finalize.Status
					finalizedAt := event.Finalize.FinalizedAt
					sale.FinalizedAt = &finalizedAt
					sale.WinningBidID = event.Finalize.WinningBidID
				}
				err = writeEvent(w, "finalized", event)
			case models.EventSaleUpdated:
				fresh, ferr := h.Service.GetSale(ctx, id)
				if ferr != nil {
					h.Logger.Warn("SSE", fmt.Sprintf("Failed to reload sale %s: %v", id, ferr))
					continue
				}
				sale = fresh
				snap := clock.Reschedule(sale.EndsAt)
				endedSent = snap.State == countdown.Ended
				err = writeEvent(w, "updated", h.tickEvent(sale, snapshot()))
			case models.EventSaleDeleted:
				_ = writeEvent(w, "deleted", event)
				flusher.Flush()
				return
			default:
				continue
			}

		case <-ticker.C:
			snap := snapshot()
			if snap.State == countdown.Ended && !endedSent {
				endedSent = true
				ended := h.tickEvent(sale, snap)
				ended.Type = models.EventEnded
				if err = writeEvent(w, "ended", ended); err != nil {
					return
				}
			}
			err = writeEvent(w, "tick", h.tickEvent(sale, snap))
		}

		if err != nil {
			h.Logger.Debug("SSE", fmt.Sprintf("Stopped streaming sale %s: %v", id, err))
			return
		}
		flusher.Flush()
	}
}

func (h *Handler) tickEvent(sale *models.QuickSale, snap countdown.Snapshot) models.SaleEvent {
	return models.SaleEvent{
		Type:       models.EventTick,
		SaleID:     sale.ID,
		Status:     sale.Status,
		Countdown:  &snap,
		OccurredAt: snap.ServerTime,
	}
}

func writeEvent(w http.ResponseWriter, name string, event models.SaleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
