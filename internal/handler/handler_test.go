package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dan9191/card-payments/internal/integrations/gateway"
	"github.com/Dan9191/card-payments/internal/models"
	"github.com/Dan9191/card-payments/internal/repository"
	"github.com/Dan9191/card-payments/internal/service"
	"github.com/Dan9191/card-payments/internal/utils"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type brokenGateway struct{}

func (brokenGateway) Authorize(context.Context, models.CardDetails, decimal.Decimal) (models.AuthorizationOutcome, error) {
	return models.OutcomeApproved, errors.New("connection reset")
}

func newTestRouter(t *testing.T, auth service.Authorizer) (*mux.Router, *repository.Memory) {
	t.Helper()
	key, err := utils.ParseKey("a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6")
	if err != nil {
		t.Fatalf("ParseKey() error = %v", err)
	}
	cipher, err := utils.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	store := repository.NewMemory()
	now := func() time.Time { return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC) }
	svc := service.NewService(store, store, auth, cipher, testLogger(), service.Options{Now: now})

	r := mux.NewRouter()
	NewHandler(svc, testLogger()).Routes(r)
	return r, store
}

func post(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateTransaction(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		wantReason string
		wantTx     int
	}{
		{
			name:       "approved",
			body:       `{"card_number":"4111111111111111","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":"99.99","description":"Online Purchase"}`,
			wantStatus: http.StatusCreated,
			wantTx:     1,
		},
		{
			name:       "numeric amount",
			body:       `{"card_number":"4111111111111111","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":12.5}`,
			wantStatus: http.StatusCreated,
			wantTx:     1,
		},
		{
			name:       "declined",
			body:       `{"card_number":"4000000000000002","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":"10"}`,
			wantStatus: http.StatusCreated,
			wantTx:     1,
		},
		{
			name:       "zero amount",
			body:       `{"card_number":"4111111111111111","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":"0"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_amount",
		},
		{
			name:       "luhn failure",
			body:       `{"card_number":"4111111111111112","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":"10"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_card",
			wantReason: "luhn",
		},
		{
			name:       "expired",
			body:       `{"card_number":"4111111111111111","cardholder_name":"John Doe","expiry_date":"01/20","cvv":"123","amount":"10"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_card",
			wantReason: "expiry",
		},
		{
			name:       "single digit month",
			body:       `{"card_number":"4111111111111111","cardholder_name":"John Doe","expiry_date":"1/27","cvv":"123","amount":"10"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_card",
			wantReason: "expiry",
		},
		{
			name:       "five digit cvv",
			body:       `{"card_number":"4111111111111111","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"12345","amount":"10"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_card",
			wantReason: "cvv",
		},
		{
			name:       "card number too long",
			body:       `{"card_number":"4111-1111-1111-1111-1111-1111-1111","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":"10"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_card",
			wantReason: "luhn",
		},
		{
			name:       "description too long",
			body:       `{"card_number":"4111111111111111","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":"10","description":"` + strings.Repeat("d", 256) + `"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_description",
		},
		{
			name:       "missing field",
			body:       `{"card_number":"4111111111111111","expiry_date":"12/27","cvv":"123","amount":"10"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "bad_request",
		},
		{
			name:       "unknown field",
			body:       `{"card_number":"4111111111111111","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":"10","pin":"0000"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "bad_request",
		},
		{
			name:       "malformed json",
			body:       `{"card_number":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "bad_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := gateway.NewSimulated([]string{"4000000000000002"}, 0, testLogger())
			r, store := newTestRouter(t, auth)

			rec := post(t, r, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}

			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("error = %v, want %s", body["error"], tt.wantError)
			}
			if tt.wantReason != "" && body["reason"] != tt.wantReason {
				t.Errorf("reason = %v, want %s", body["reason"], tt.wantReason)
			}
			if got := len(store.Transactions()); got != tt.wantTx {
				t.Errorf("transactions = %d, want %d", got, tt.wantTx)
			}
			if tt.wantTx == 0 && store.CardCount() != 0 {
				t.Error("rejected request must not store a card")
			}
		})
	}
}

func TestCreateTransaction_StatusInBody(t *testing.T) {
	auth := gateway.NewSimulated([]string{"4000000000000002"}, 0, testLogger())
	r, _ := newTestRouter(t, auth)

	rec := post(t, r, `{"card_number":"4000000000000002","cardholder_name":"Jane Roe","expiry_date":"12/27","cvv":"1234","amount":"5.00"}`)
	var resp struct {
		TransactionID string `json:"transaction_id"`
		CardID        string `json:"card_id"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp.Status != "DECLINED" || resp.TransactionID == "" || resp.CardID == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCreateTransaction_GatewayError(t *testing.T) {
	r, store := newTestRouter(t, brokenGateway{})

	rec := post(t, r, `{"card_number":"4111111111111111","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":"10"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "DECLINED" || resp["error"] != "gateway_error" {
		t.Errorf("unexpected response %v", resp)
	}
	if len(store.Transactions()) != 1 {
		t.Error("expected the declined transaction to be recorded")
	}
}

func TestGetCard(t *testing.T) {
	r, _ := newTestRouter(t, gateway.NewSimulated(nil, 0, testLogger()))

	rec := post(t, r, `{"card_number":"5555555555554444","cardholder_name":"Jane Roe","expiry_date":"03/28","cvv":"321","amount":"1"}`)
	var created struct {
		CardID string `json:"card_id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &created)

	req := httptest.NewRequest(http.MethodGet, "/cards/"+created.CardID, nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, req)
	if getRec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", getRec.Code)
	}
	var view models.CardView
	if err := json.Unmarshal(getRec.Body.Bytes(), &view); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if view.MaskedNumber != "**** **** **** 4444" || view.CardholderName != "Jane Roe" || view.ExpiryDate != "03/28" {
		t.Errorf("unexpected view %+v", view)
	}
	if bytes.Contains(getRec.Body.Bytes(), []byte("5555555555554444")) {
		t.Error("response leaks the full card number")
	}

	for _, id := range []string{"not-a-uuid", "3f1c7a2e-9d4b-4c8a-a6f0-1b2c3d4e5f60"} {
		req := httptest.NewRequest(http.MethodGet, "/cards/"+id, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET /cards/%s status = %d, want 404", id, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	h := NewHandler(nil, testLogger())
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestListCardTransactions(t *testing.T) {
	r, _ := newTestRouter(t, gateway.NewSimulated([]string{"4000000000000002"}, 0, testLogger()))

	var cardID string
	for _, amount := range []string{"10.00", "20.00"} {
		rec := post(t, r, `{"card_number":"4111 1111 1111 1111","cardholder_name":"John Doe","expiry_date":"12/27","cvv":"123","amount":"`+amount+`"}`)
		var created struct {
			CardID string `json:"card_id"`
		}
		json.Unmarshal(rec.Body.Bytes(), &created)
		cardID = created.CardID
	}

	req := httptest.NewRequest(http.MethodGet, "/cards/"+cardID+"/transactions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var txs []models.TransactionRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &txs); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if !txs[0].Amount.Equal(decimal.RequireFromString("10")) || txs[0].Status != models.StatusApproved {
		t.Errorf("unexpected first transaction %+v", txs[0])
	}

	req = httptest.NewRequest(http.MethodGet, "/cards/3f1c7a2e-9d4b-4c8a-a6f0-1b2c3d4e5f60/transactions", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown card status = %d, want 404", rec.Code)
	}
}

// downStore fails every storage call
type downStore struct{}

var errDown = errors.New("connection refused")

func (downStore) FindByFingerprint(context.Context, string) (*models.CardRecord, error) {
	return nil, errDown
}
func (downStore) FindByID(context.Context, string) (*models.CardRecord, error) { return nil, errDown }
func (downStore) Insert(context.Context, *models.CardRecord) (string, error)  { return "", errDown }
func (downStore) Append(context.Context, *models.TransactionRecord) error     { return errDown }
func (downStore) ListByCard(context.Context, string) ([]models.TransactionRecord, error) {
	return nil, errDown
}

func TestCardLookup_StorageUnavailable(t *testing.T) {
	key, _ := utils.ParseKey("a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6")
	cipher, err := utils.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	svc := service.NewService(downStore{}, downStore{}, brokenGateway{}, cipher, testLogger(), service.Options{})
	r := mux.NewRouter()
	NewHandler(svc, testLogger()).Routes(r)

	for _, path := range []string{
		"/cards/3f1c7a2e-9d4b-4c8a-a6f0-1b2c3d4e5f60",
		"/cards/3f1c7a2e-9d4b-4c8a-a6f0-1b2c3d4e5f60/transactions",
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, rec.Code)
		}
	}
}
