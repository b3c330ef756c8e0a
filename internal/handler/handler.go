package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dan9191/card-payments/internal/models"
	"github.com/Dan9191/card-payments/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc      *service.Service
	validate *validator.Validate
	log      *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, validate: validator.New(), log: log}
}

// TransactionRequest is the body of POST /transactions.
// Tags only bound field sizes; card format checks belong to the service.
type TransactionRequest struct {
	CardNumber     string          `json:"card_number" validate:"required,max=64"`
	CardholderName string          `json:"cardholder_name" validate:"required,max=255"`
	ExpiryDate     string          `json:"expiry_date" validate:"required,max=16"`
	CVV            string          `json:"cvv" validate:"required,max=16"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" validate:"max=1024"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

type transactionResponse struct {
	*service.Result
	Error string `json:"error,omitempty"`
}

// Routes registers the handler on r
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/transactions", h.CreateTransaction).Methods(http.MethodPost)
	r.HandleFunc("/cards/{id}", h.GetCard).Methods(http.MethodGet)
	r.HandleFunc("/cards/{id}/transactions", h.ListCardTransactions).Methods(http.MethodGet)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateTransaction handles a card payment request
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "malformed JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	card := models.CardDetails{
		CardNumber:     req.CardNumber,
		CardholderName: req.CardholderName,
		ExpiryDate:     req.ExpiryDate,
		CVV:            req.CVV,
	}
	result, err := h.svc.ProcessTransaction(r.Context(), card, req.Amount, req.Description)

	var invalidCard *service.InvalidCardError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, transactionResponse{Result: result})
	case errors.Is(err, service.ErrGateway) && result != nil:
		writeJSON(w, http.StatusBadGateway, transactionResponse{Result: result, Error: "gateway_error"})
	case errors.Is(err, service.ErrInvalidAmount):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid_amount", Message: err.Error()})
	case errors.Is(err, service.ErrInvalidDescription):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid_description", Message: err.Error()})
	case errors.As(err, &invalidCard):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "invalid_card",
			Message: err.Error(),
			Reason:  string(invalidCard.Reason),
		})
	case errors.Is(err, service.ErrStorage):
		h.log.WithError(err).Error("Transaction aborted by storage failure")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage_unavailable", Message: "transaction could not be recorded"})
	default:
		h.log.WithError(err).Error("Transaction failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
	}
}

// GetCard returns the masked, decrypted view of a stored card
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}

	view, err := h.svc.Card(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, "Card lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListCardTransactions returns the transaction history of a stored card
func (h *Handler) ListCardTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}

	txs, err := h.svc.Transactions(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, "Transaction history lookup failed")
		return
	}
	if txs == nil {
		txs = []models.TransactionRecord{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func cardID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "card not found"})
		return "", false
	}
	return id, true
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrCardNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "card not found"})
	case errors.Is(err, service.ErrStorage):
		h.log.WithError(err).Error(msg)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage_unavailable", Message: "card store is unavailable"})
	default:
		h.log.WithError(err).Error(msg)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
