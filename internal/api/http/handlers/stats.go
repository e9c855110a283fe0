package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"lockstats/internal/bucket"
	"lockstats/internal/domain"
	"lockstats/internal/service"
	"lockstats/internal/store"
	"lockstats/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

// Responses carry big numbers as decimal strings

type UserResponse struct {
	ID          string `json:"id"`
	TotalLocked string `json:"total_locked"`
}

type MovementResponse struct {
	ID            string `json:"id"`
	Class         string `json:"class"`
	User          string `json:"user"`
	Token         string `json:"token"`
	Amount        string `json:"amount"`
	AmountUSD     string `json:"amount_usd"`
	BoostedAmount string `json:"boosted_amount,omitempty"`
	Time          int64  `json:"time"`
	BlockNumber   uint64 `json:"block_number"`
}

type TokenResponse struct {
	ID       string `json:"id"`
	Decimals int32  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
}

type BucketResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Token     string `json:"token,omitempty"`
	Time      int64  `json:"time"`
	End       int64  `json:"end"`
	Amount    string `json:"amount"`
	AmountUSD string `json:"amount_usd"`
	Count     int64  `json:"count"`
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Stats.GetUser(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.fail(w, r, "user", err)
		return
	}
	h.ok(w, UserResponse{ID: u.ID, TotalLocked: u.TotalLocked.String()})
}

func (h *Handler) GetMovement(w http.ResponseWriter, r *http.Request) {
	mv, err := h.Stats.GetMovement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "movement", err)
		return
	}

	resp := MovementResponse{
		ID:          mv.ID,
		Class:       string(mv.Class),
		User:        mv.User,
		Token:       mv.Token,
		Amount:      mv.Amount.String(),
		AmountUSD:   mv.AmountUSD.String(),
		Time:        mv.Time,
		BlockNumber: mv.BlockNumber,
	}
	if mv.BoostedAmount != nil {
		resp.BoostedAmount = mv.BoostedAmount.String()
	}
	h.ok(w, resp)
}

func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.Stats.GetToken(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.fail(w, r, "token", err)
		return
	}
	h.ok(w, TokenResponse{ID: tok.ID, Decimals: tok.Decimals, Symbol: tok.Symbol})
}

// GetBucket serves /api/buckets/{period}/{class}?ts=<unix>[&token=<addr>]; ts defaults to now
func (h *Handler) GetBucket(w http.ResponseWriter, r *http.Request) {
	p, err := bucket.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	class, ok := domain.ParseClass(chi.URLParam(r, "class"))
	if !ok {
		h.badRequest(w, r, "class must be lock|withdrawal|reward")
		return
	}

	ts := time.Now().Unix()
	if raw := r.URL.Query().Get("ts"); raw != "" {
		if ts, err = strconv.ParseInt(raw, 10, 64); err != nil || ts < 0 {
			h.badRequest(w, r, "ts must be a non-negative unix timestamp")
			return
		}
	}

	b, err := h.Stats.GetBucket(r.Context(), p, class, ts, r.URL.Query().Get("token"))
	if err != nil {
		h.fail(w, r, "bucket", err)
		return
	}

	h.ok(w, BucketResponse{
		ID:        b.ID,
		Kind:      string(b.Kind()),
		Token:     b.Token,
		Time:      b.Time,
		End:       bucket.End(b.Time, b.Period),
		Amount:    b.Amount.String(),
		AmountUSD: b.AmountUSD.String(),
		Count:     b.Count,
	})
}

func (h *Handler) ok(w http.ResponseWriter, body any) {
	if err := httputil.JSON(w, http.StatusOK, body, nil); err != nil {
		h.Log.Errorf("Write response error: %v", err)
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	if err := httputil.BadRequest(w, r, msg); err != nil {
		h.Log.Errorf("Write response error: %v", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	var werr error
	switch {
	case errors.Is(err, service.ErrInvalidQuery):
		werr = httputil.BadRequest(w, r, err.Error())
	case errors.Is(err, store.ErrNotFound):
		werr = httputil.NotFound(w, r, what)
	default:
		h.Log.Errorf("Load %s failed: %v", what, err)
		werr = httputil.Error(w, r, http.StatusInternalServerError, "internal", "failed to load "+what, nil)
	}
	if werr != nil {
		h.Log.Errorf("Write response error: %v", werr)
	}
}
