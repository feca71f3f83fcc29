package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/clicker/internal/adapters/mq/queue"
	"github.com/okian/clicker/internal/adapters/mq/worker"
	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/types"
	"github.com/okian/clicker/pkg/logger"
)

// idempotencyHeader optionally identifies a tap across client retries.
const idempotencyHeader = "Idempotency-Key"

// RoundsHandler handles round listing, creation, lookup and taps.
type RoundsHandler struct {
	deps Dependencies
	settings
}

// NewRoundsHandler creates a new rounds handler.
func NewRoundsHandler(deps Dependencies, s settings) *RoundsHandler {
	return &RoundsHandler{deps: deps, settings: s}
}

type createRoundRequest struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

type tapRequest struct {
	RoundID string `json:"roundId" validate:"required,max=64"`
	EchoID  string `json:"echoId" validate:"omitempty,max=128"`
}

type roundResponse struct {
	Round model.RoundView `json:"round"`
	Tap   *model.Tap      `json:"tap"`
}

// HandleList handles GET /api/rounds?page&pageSize&sort.
func (h *RoundsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_rounds"
	ctx := r.Context()

	q, err := h.listQuery(r)
	if err != nil {
		writeError(ctx, h.logger, w, WrapKind(op, model.ErrInvalidInput, err))
		return
	}
	page, err := h.deps.ListRounds(ctx, q)
	if err != nil {
		writeError(ctx, h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *RoundsHandler) listQuery(r *http.Request) (types.ListQuery, error) {
	values := r.URL.Query()
	q := types.ListQuery{Page: 1, PageSize: h.pageSizeDefault}

	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, fmt.Errorf("page must be a positive integer")
		}
		q.Page = n
	}
	if v := values.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("pageSize must be an integer")
		}
		rule := fmt.Sprintf("min=%d,max=%d", h.pageSizeMin, h.pageSizeMax)
		if err := h.validate.VarCtx(r.Context(), n, rule); err != nil {
			return q, fmt.Errorf("pageSize must be within [%d, %d]", h.pageSizeMin, h.pageSizeMax)
		}
		q.PageSize = n
	}

	sortExpr := h.defaultSort
	if v := strings.TrimSpace(values.Get("sort")); v != "" {
		sortExpr = v
	}
	sort, err := types.ParseSort(sortExpr)
	if err != nil {
		return q, err
	}
	q.Sort = sort
	return q, nil
}

// HandleCount handles GET /api/rounds/count.
func (h *RoundsHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.CountRounds(r.Context())
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap("api.count_rounds", err))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// HandleCreate handles POST /api/rounds. Only admins may create rounds; an
// empty body takes the configured cooldown and duration.
func (h *RoundsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_round"
	ctx := r.Context()

	user, err := h.deps.CurrentUser(ctx, tokenFrom(r))
	if err != nil {
		writeError(ctx, h.logger, w, Wrap(op, err))
		return
	}
	if user.Role != model.RoleAdmin {
		writeError(ctx, h.logger, w, NewKind(op, model.ErrForbidden))
		return
	}

	var req createRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(ctx, h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}

	round, err := h.deps.CreateRound(ctx, req.Start, req.End)
	if err != nil {
		writeError(ctx, h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

// HandleGet handles GET /api/rounds/{id}. Authenticated callers also get
// their own tap record, created empty on first view.
func (h *RoundsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_round"
	ctx := r.Context()
	id := r.PathValue("id")

	round, err := h.deps.GetRound(ctx, id)
	if err != nil {
		writeError(ctx, h.logger, w, Wrap(op, err))
		return
	}
	resp := roundResponse{Round: round}

	if token := tokenFrom(r); token != "" {
		user, err := h.deps.CurrentUser(ctx, token)
		if err != nil {
			writeError(ctx, h.logger, w, Wrap(op, err))
			return
		}
		tap, err := h.deps.EnsureUserTap(ctx, user.ID, id)
		if err != nil {
			writeError(ctx, h.logger, w, Wrap(op, err))
			return
		}
		resp.Tap = &tap
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleTap handles POST /api/rounds/tap.
func (h *RoundsHandler) HandleTap(w http.ResponseWriter, r *http.Request) {
	const op = "api.tap"
	ctx := r.Context()

	user, err := h.deps.CurrentUser(ctx, tokenFrom(r))
	if err != nil {
		writeError(ctx, h.logger, w, Wrap(op, err))
		return
	}

	var req tapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		writeError(ctx, h.logger, w, WrapKind(op, model.ErrInvalidInput, err))
		return
	}

	// Idempotency check - mark as seen first
	var dedupeKey string
	if key := strings.TrimSpace(r.Header.Get(idempotencyHeader)); key != "" {
		dedupeKey = user.ID + ":" + key
		if h.deps.SeenAndRecord(ctx, dedupeKey) {
			writeError(ctx, h.logger, w, NewKind(op, ErrDuplicateTap))
			return
		}
	}

	res, err := h.deps.SubmitTap(ctx, user.ID, req.RoundID, req.EchoID)
	if err != nil {
		// the tap never ran, so a retry with the same key must be accepted
		if dedupeKey != "" && (errors.Is(err, queue.ErrQueueFull) || errors.Is(err, worker.ErrStopped)) {
			h.deps.Unrecord(ctx, dedupeKey)
		}
		if !errors.Is(err, model.ErrRoundNotActive) {
			h.logger.Debug(ctx, "tap failed",
				logger.String("user_id", user.ID),
				logger.String("round_id", req.RoundID),
				logger.Error(err),
			)
		}
		writeError(ctx, h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
