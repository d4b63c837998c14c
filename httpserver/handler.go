package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/ruteri/encrypted-name-registry/api"
	"github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/registration"
)

// maxBodySize is the maximum allowed request body size (64kB).
const maxBodySize = 64 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Handler serves the workflow endpoints.
type Handler struct {
	workflow *registration.Workflow
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(workflow *registration.Workflow, log *slog.Logger) *Handler {
	return &Handler{
		workflow: workflow,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      common.OrDefault(log),
	}
}

// RegisterRoutes mounts the workflow endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/wallet/connect", h.HandleConnect)
	r.Post("/api/wallet/disconnect", h.HandleDisconnect)
	r.Get("/api/wallet/session", h.HandleSession)

	r.Put("/api/domain", h.HandleSetDomain)
	r.Get("/api/domain", h.HandleDomain)
	r.Post("/api/domain/check", h.HandleCheck)
	r.Post("/api/domain/register", h.HandleRegister)

	r.Get("/api/ledger", h.HandleLedger)
}

func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	session, err := h.workflow.Connect(r.Context())
	if err != nil {
		h.log.Warn("Wallet connect failed", "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewSessionResponse(session))
}

func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	h.workflow.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, api.NewSessionResponse(h.workflow.Connector.Session()))
}

// HandleSetDomain replaces the candidate name. The probe runs after the
// debounce delay; poll GET /api/domain for the verdict.
func (h *Handler) HandleSetDomain(w http.ResponseWriter, r *http.Request) {
	var req api.DomainRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.workflow.Prober.SetName(req.Name)
	h.writeJSON(w, http.StatusAccepted, h.domain())
}

func (h *Handler) HandleDomain(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.domain())
}

// HandleCheck probes a name immediately and makes it the candidate.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req api.DomainRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if h.workflow.Connector.Session() == nil {
		h.writeError(w, interfaces.ErrNoSession)
		return
	}

	h.workflow.Prober.Probe(r.Context(), req.Name)
	h.writeJSON(w, http.StatusOK, h.domain())
}

// HandleRegister runs a registration to completion. The response holds the
// ledger record of the attempt whenever one was recorded.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	record, err := h.workflow.Register(r.Context(), req.Name)
	if err != nil {
		h.log.Warn("Registration failed", "name", req.Name, "err", err)
		if record.Status == "" {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, statusFor(err), api.RegisterResponse{Record: &record, Error: api.NewErrorResponse(err)})
		return
	}

	h.writeJSON(w, http.StatusOK, api.RegisterResponse{Record: &record})
}

func (h *Handler) HandleLedger(w http.ResponseWriter, r *http.Request) {
	records := h.workflow.Ledger.Records()
	h.writeJSON(w, http.StatusOK, api.LedgerResponse{Records: records, Pending: h.workflow.Ledger.Pending()})
}

func (h *Handler) domain() api.DomainResponse {
	query := h.workflow.Prober.Query()
	return api.DomainResponse{DomainQuery: query, CanSubmit: h.workflow.CanSubmit(query.Name)}
}

func (h *Handler) decode(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("failed to read request body: %w", err)}
	}
	if len(body) > maxBodySize {
		return &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("request body too large")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)}
	}
	if err := h.validate.Struct(out); err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	resp := api.NewErrorResponse(err)
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		resp.Kind = api.KindInvalidRequest
	}
	h.writeJSON(w, statusFor(err), resp)
}

// statusFor maps workflow errors to HTTP status codes.
func statusFor(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}

	switch api.ErrorKind(err) {
	case api.KindProviderMissing:
		return http.StatusServiceUnavailable
	case api.KindAuthorizationDenied, api.KindTransactionRejected:
		return http.StatusForbidden
	case api.KindProviderError, api.KindEncryption:
		return http.StatusBadGateway
	case api.KindNoSession:
		return http.StatusPreconditionFailed
	case api.KindUnsupportedNetwork, api.KindDomainTaken, api.KindInFlight:
		return http.StatusConflict
	case api.KindEmptyName:
		return http.StatusBadRequest
	case api.KindTransactionReverted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
