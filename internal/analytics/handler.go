package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/errors"
)

const maxTop = 100

// Handler serves the aggregated statistics as JSON.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves GET /api/v1/search/stats. The optional top parameter sets
// how many frequent and zero-result queries are listed.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	n := topQueries
	if raw := r.URL.Query().Get("top"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxTop {
			h.write(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"top must be between 1 and %d, got %q", maxTop, raw))
			return
		}
		n = parsed
	}
	h.write(w, h.aggregator.StatsTop(n))
}

func (h *Handler) write(w http.ResponseWriter, v any) {
	status := http.StatusOK
	if err, ok := v.(error); ok {
		var message string
		status, message = apperrors.Response(err)
		v = map[string]string{"error": message}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
