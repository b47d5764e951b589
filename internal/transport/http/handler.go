package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"leasio/internal/engine"
	"leasio/internal/model"
	"leasio/internal/registry"
	"leasio/internal/service"
)

type Handler struct {
	svc service.LeaseService
	reg *registry.Registry
}

func NewHandler(svc service.LeaseService, reg *registry.Registry) *Handler {
	return &Handler{svc: svc, reg: reg}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /deposit", h.Deposit)
	mux.HandleFunc("POST /withdraw", h.Withdraw)
	mux.HandleFunc("GET /balance", h.Balance)

	mux.HandleFunc("POST /leases", h.CreateLease)
	mux.HandleFunc("GET /leases", h.LeasesOf)
	mux.HandleFunc("GET /leases/{id}", h.GetLease)
	mux.HandleFunc("POST /leases/{id}/pause", h.Pause)
	mux.HandleFunc("POST /leases/{id}/resume", h.Resume)
	mux.HandleFunc("POST /leases/{id}/stop", h.Stop)
	mux.HandleFunc("POST /admin/leases/{id}/stop", h.ManagerStop)

	mux.HandleFunc("POST /resources", h.DefineResource)
	mux.HandleFunc("POST /resources/{id}/price", h.SetResourcePrice)
	mux.HandleFunc("POST /resources/{id}/deprecate", h.DeprecateResource)
	mux.HandleFunc("GET /resources/{id}", h.GetResource)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req model.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.svc.Deposit(r.Context(), req.Account, req.Amount); err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req model.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.svc.Withdraw(r.Context(), req.Account, req.Amount); err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		h.respondError(w, http.StatusBadRequest, "missing_account")
		return
	}
	balance, err := h.svc.FreeBalance(r.Context(), account)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (h *Handler) CreateLease(w http.ResponseWriter, r *http.Request) {
	var req model.CreateLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	id, err := h.svc.CreateLease(r.Context(), req.Owner, req.ResourceID, req.Hours, req.Tag)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]uint64{"lease_id": id})
}

func (h *Handler) LeasesOf(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		h.respondError(w, http.StatusBadRequest, "missing_owner")
		return
	}
	ids, err := h.svc.LeasesOf(r.Context(), owner)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	h.respondJSON(w, http.StatusOK, map[string][]uint64{"lease_ids": ids})
}

func (h *Handler) GetLease(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Lease(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.leaseAction(w, r, func(caller string, id uint64) error {
		return h.svc.Pause(r.Context(), caller, id)
	})
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	h.leaseAction(w, r, func(caller string, id uint64) error {
		return h.svc.Resume(r.Context(), caller, id)
	})
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	h.stopAction(w, r, h.svc.Stop)
}

func (h *Handler) ManagerStop(w http.ResponseWriter, r *http.Request) {
	h.stopAction(w, r, h.svc.ManagerStop)
}

func (h *Handler) leaseAction(w http.ResponseWriter, r *http.Request, action func(caller string, id uint64) error) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	caller, ok := h.decodeCaller(w, r)
	if !ok {
		return
	}
	if err := action(caller, id); err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) stopAction(w http.ResponseWriter, r *http.Request, stop func(ctx context.Context, caller string, id uint64) (uint64, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	caller, ok := h.decodeCaller(w, r)
	if !ok {
		return
	}
	refund, err := stop(r.Context(), caller, id)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, model.StopResult{Refund: refund})
}

func (h *Handler) DefineResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		model.CatalogEntry
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.reg.Define(req.Caller, req.CatalogEntry); err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"status": "defined"})
}

func (h *Handler) SetResourcePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller       string `json:"caller"`
		PricePerHour uint64 `json:"price_per_hour"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.reg.SetPrice(req.Caller, id, req.PricePerHour); err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) DeprecateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	caller, ok := h.decodeCaller(w, r)
	if !ok {
		return
	}
	if err := h.reg.Deprecate(caller, id); err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deprecated"})
}

func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.reg.Get(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		h.respondError(w, http.StatusBadRequest, "invalid_id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Caller string `json:"caller"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Caller == "" {
		h.respondError(w, http.StatusBadRequest, "missing_caller")
		return "", false
	}
	return req.Caller, true
}

// statusFor maps the engine's failure taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotOwner), errors.Is(err, engine.ErrNotManager):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrUnknownLease), errors.Is(err, engine.ErrUnknownResource):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrNotPaused),
		errors.Is(err, engine.ErrNotPausable),
		errors.Is(err, engine.ErrAlreadyStopped),
		errors.Is(err, registry.ErrDuplicateResource):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientCredits),
		errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrDeprecatedResource),
		errors.Is(err, engine.ErrWrongResourceKind),
		errors.Is(err, engine.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondFailure(w http.ResponseWriter, err error) {
	h.respondError(w, statusFor(err), err.Error())
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
