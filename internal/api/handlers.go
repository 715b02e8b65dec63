package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/flatwatch/flatwatch/internal/buildinfo"
	"github.com/flatwatch/flatwatch/internal/feed"
	"github.com/flatwatch/flatwatch/internal/listing"
	"github.com/flatwatch/flatwatch/internal/monitor"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 50
)

// HandleHealthz reports process liveness.
func HandleHealthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// StatusResponse is the loop status plus build identity.
type StatusResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	monitor.Status
}

// HandleStatus returns the scheduler snapshot.
func HandleStatus(sched *monitor.Scheduler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, StatusResponse{
			Version:   buildinfo.Version,
			GitCommit: buildinfo.GitCommit,
			Status:    sched.Status(),
		})
	})
}

// HandleForceCheck triggers one immediate ingestion pass with provider
// cooldowns bypassed.
func HandleForceCheck(sched *monitor.Scheduler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if err := sched.ForceCheck(); err != nil {
			if errors.Is(err, monitor.ErrNotRunning) {
				WriteError(w, http.StatusConflict, "not_running", err.Error())
				return
			}
			WriteError(w, http.StatusInternalServerError, "force_check_failed", err.Error())
			return
		}
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
	})
}

// FeedResponse is the feed result envelope.
type FeedResponse struct {
	Items []listing.Listing `json:"items"`
	Count int               `json:"count"`
}

// HandleFeed serves on-demand diversified searches. Query parameters:
// city, price_min, price_max, rooms_min, rooms_max, limit.
func HandleFeed(feedSvc *feed.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := parseFeedQuery(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		limit := defaultFeedLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				WriteError(w, http.StatusBadRequest, "invalid_query", "limit must be a positive integer")
				return
			}
			if limit > maxFeedLimit {
				limit = maxFeedLimit
			}
		}

		items, err := feedSvc.Search(r.Context(), q, limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "search_failed", err.Error())
			return
		}
		if items == nil {
			items = []listing.Listing{}
		}
		WriteJSON(w, http.StatusOK, FeedResponse{Items: items, Count: len(items)})
	})
}

func parseFeedQuery(r *http.Request) (listing.Query, error) {
	var q listing.Query
	vals := r.URL.Query()
	q.City = vals.Get("city")

	for _, b := range []struct {
		name string
		dst  **float64
	}{
		{"price_min", &q.PriceMin},
		{"price_max", &q.PriceMax},
		{"rooms_min", &q.RoomsMin},
		{"rooms_max", &q.RoomsMax},
	} {
		raw := vals.Get(b.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return q, errors.New(b.name + " must be a non-negative number")
		}
		*b.dst = listing.Float(v)
	}
	return q, nil
}
