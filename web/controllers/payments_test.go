package controllers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"aptlink/web/db"
)

func createPayment(t *testing.T, r *gin.Engine) (string, map[string]any) {
	t.Helper()
	w, resp := doJSON(t, r, "POST", "/payments/create", map[string]any{
		"amount":         "25.50",
		"recipientEmail": "alice@example.com",
		"senderAddress":  actorAddr,
	})
	if w.Code != http.StatusOK {
		t.Fatal("create failed:", w.Code, w.Body.String())
	}
	return resp["paymentId"].(string), resp
}

func TestCreatePaymentValidation(t *testing.T) {
	r, _, _ := setup(t)

	bad := []map[string]any{
		{"amount": "0", "recipientEmail": "alice@example.com"},
		{"amount": "-5", "recipientEmail": "alice@example.com"},
		{"amount": "abc", "recipientEmail": "alice@example.com"},
		{"amount": "25.50", "recipientEmail": "not-an-email"},
		{"amount": "25.50", "recipientEmail": "alice@example.com", "senderAddress": "bogus"},
		{"amount": "25.50", "recipientEmail": "alice@example.com", "token": "DOGE"},
	}

	for _, body := range bad {
		w, _ := doJSON(t, r, "POST", "/payments/create", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: expected 400, got %d", body, w.Code)
		}
	}

	var count int64
	db.DB.Model(&db.PaymentIntent{}).Count(&count)
	if count != 0 {
		t.Error("invalid requests persisted payment intents")
	}
}

func TestCreatePayment(t *testing.T) {
	r, _, _ := setup(t)

	paymentID, resp := createPayment(t, r)
	if paymentID == "" {
		t.Fatal("missing paymentId")
	}
	if !strings.Contains(resp["paymentUrl"].(string), paymentID) {
		t.Error("paymentUrl does not embed the payment id:", resp)
	}

	var intent db.PaymentIntent
	if err := db.DB.Where("payment_id = ?", paymentID).First(&intent).Error; err != nil {
		t.Fatal(err)
	}
	if intent.Status != db.StatusPending || intent.RecipientEmail != "alice@example.com" {
		t.Errorf("unexpected intent: %+v", intent)
	}
}

func TestCreatePaymentStoresParsedAmount(t *testing.T) {
	r, _, _ := setup(t)

	w, resp := doJSON(t, r, "POST", "/payments/create", map[string]any{
		"amount":         " 25.50 ",
		"recipientEmail": "alice@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatal("create failed:", w.Code, w.Body.String())
	}

	var intent db.PaymentIntent
	if err := db.DB.Where("payment_id = ?", resp["paymentId"]).First(&intent).Error; err != nil {
		t.Fatal(err)
	}
	if intent.Amount != "25.5" {
		t.Errorf("amount stored verbatim instead of parsed: %q", intent.Amount)
	}
}

func TestClaimPayment(t *testing.T) {
	r, _, _ := setup(t)
	paymentID, _ := createPayment(t, r)

	w, resp := doJSON(t, r, "POST", "/payments/claim", map[string]any{
		"paymentId":        paymentID,
		"recipientEmail":   "Alice@Example.com",
		"recipientAddress": otherAddr,
	})
	if w.Code != http.StatusOK {
		t.Fatal("claim failed:", w.Code, w.Body.String())
	}

	payment := resp["payment"].(map[string]any)
	if payment["recipientAddress"] != otherAddr {
		t.Error("claim did not attach the recipient address")
	}
	if payment["status"] != db.StatusPending {
		t.Error("claim must leave the intent pending until the sender executes")
	}

	// claiming upserts the email mapping, case-folded
	var mapping db.EmailMapping
	if err := db.DB.Where("email = ?", "alice@example.com").First(&mapping).Error; err != nil {
		t.Fatal("claim did not upsert the email mapping:", err)
	}
	if mapping.AptosAddress != otherAddr {
		t.Error("mapping has the wrong address")
	}
}

func TestClaimConflictOnClaimedPayment(t *testing.T) {
	r, _, _ := setup(t)
	paymentID, _ := createPayment(t, r)

	doJSON(t, r, "POST", "/payments/claim", map[string]any{
		"paymentId": paymentID, "recipientEmail": "alice@example.com", "recipientAddress": otherAddr,
	})
	doJSON(t, r, "POST", "/payments/update", map[string]any{
		"paymentId": paymentID, "transactionHash": txHash,
	})

	w, resp := doJSON(t, r, "POST", "/payments/claim", map[string]any{
		"paymentId": paymentID, "recipientEmail": "mallory@example.com", "recipientAddress": actorAddr,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatal("expected conflict, got", w.Code)
	}
	if !strings.Contains(resp["error"].(string), "claimed") {
		t.Error("conflict message must name the current status:", resp["error"])
	}

	// the record must be untouched
	var intent db.PaymentIntent
	db.DB.Where("payment_id = ?", paymentID).First(&intent)
	if intent.RecipientAddress != otherAddr {
		t.Error("conflicting claim mutated the record")
	}
}

func TestClaimUnknownPayment(t *testing.T) {
	r, _, _ := setup(t)

	w, _ := doJSON(t, r, "POST", "/payments/claim", map[string]any{
		"paymentId": "missing", "recipientEmail": "a@b.com", "recipientAddress": otherAddr,
	})
	if w.Code != http.StatusNotFound {
		t.Error("expected 404 for unknown payment, got", w.Code)
	}
}

const txHash = "0x00000000000000000000000000000000000000000000000000000000000000aa"

func TestClaimThenUpdateRoundTrip(t *testing.T) {
	r, _, _ := setup(t)
	paymentID, _ := createPayment(t, r)

	doJSON(t, r, "POST", "/payments/claim", map[string]any{
		"paymentId": paymentID, "recipientEmail": "alice@example.com", "recipientAddress": otherAddr,
	})

	w, resp := doJSON(t, r, "POST", "/payments/update", map[string]any{
		"paymentId": paymentID, "transactionHash": txHash,
	})
	if w.Code != http.StatusOK {
		t.Fatal("update failed:", w.Code, w.Body.String())
	}
	payment := resp["payment"].(map[string]any)
	if payment["status"] != db.StatusClaimed || payment["transactionHash"] != txHash {
		t.Error("update did not record the execution:", payment)
	}

	var intent db.PaymentIntent
	db.DB.Where("payment_id = ?", paymentID).First(&intent)
	if intent.RecipientAddress != otherAddr {
		t.Error("update lost the claimed recipient address")
	}
	if intent.ClaimedAt == nil {
		t.Error("update did not stamp the claim time")
	}

	// repeated update overwrites hash and timestamp
	w, _ = doJSON(t, r, "POST", "/payments/update", map[string]any{
		"paymentId": paymentID, "transactionHash": txHash,
	})
	if w.Code != http.StatusOK {
		t.Error("repeated update should succeed, got", w.Code)
	}
}

func TestUpdatePaymentValidation(t *testing.T) {
	r, _, _ := setup(t)
	paymentID, _ := createPayment(t, r)

	w, _ := doJSON(t, r, "POST", "/payments/update", map[string]any{
		"paymentId": paymentID, "transactionHash": "nonsense",
	})
	if w.Code != http.StatusBadRequest {
		t.Error("expected 400 for a malformed hash, got", w.Code)
	}

	w, _ = doJSON(t, r, "POST", "/payments/update", map[string]any{
		"paymentId": paymentID, "transactionHash": txHash, "status": "weird",
	})
	if w.Code != http.StatusBadRequest {
		t.Error("expected 400 for an unknown status, got", w.Code)
	}

	w, _ = doJSON(t, r, "POST", "/payments/update", map[string]any{
		"paymentId": "missing", "transactionHash": txHash,
	})
	if w.Code != http.StatusNotFound {
		t.Error("expected 404 for unknown payment, got", w.Code)
	}
}

func TestGetPayment(t *testing.T) {
	r, _, _ := setup(t)
	paymentID, _ := createPayment(t, r)

	w, resp := doJSON(t, r, "GET", "/payments/"+paymentID, nil)
	if w.Code != http.StatusOK {
		t.Fatal("expected 200, got", w.Code)
	}
	if resp["payment"].(map[string]any)["paymentId"] != paymentID {
		t.Error("unexpected payment payload")
	}

	w, _ = doJSON(t, r, "GET", "/payments/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Error("expected 404, got", w.Code)
	}
}

func TestPaymentQR(t *testing.T) {
	r, _, _ := setup(t)
	paymentID, _ := createPayment(t, r)

	w, _ := doJSON(t, r, "GET", "/payments/"+paymentID+"/qr", nil)
	if w.Code != http.StatusOK {
		t.Fatal("expected 200, got", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Error("expected a PNG response, got", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("empty QR image")
	}
}

func TestExpireStalePayments(t *testing.T) {
	r, _, _ := setup(t)
	staleID, _ := createPayment(t, r)
	freshID, _ := createPayment(t, r)

	old := time.Now().Add(-14 * 24 * time.Hour)
	db.DB.Model(&db.PaymentIntent{}).Where("payment_id = ?", staleID).Update("created_at", old)

	ExpireStalePayments()

	var stale, fresh db.PaymentIntent
	db.DB.Where("payment_id = ?", staleID).First(&stale)
	db.DB.Where("payment_id = ?", freshID).First(&fresh)

	if stale.Status != db.StatusCancelled {
		t.Error("stale pending intent was not cancelled")
	}
	if fresh.Status != db.StatusPending {
		t.Error("fresh intent must stay pending")
	}
}
