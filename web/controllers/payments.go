package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aptlink/apperr"
	"aptlink/chain"
	"aptlink/utils"
	"aptlink/web/db"
	"aptlink/web/email"
	"aptlink/web/qrcode"
)

// CreatePayment persists a pending payment intent and returns the shareable
// claim link.
func CreatePayment(c *gin.Context) {
	var req struct {
		Amount         string `json:"amount"`
		RecipientEmail string `json:"recipientEmail"`
		SenderAddress  string `json:"senderAddress"`
		Token          string `json:"token"`
	}

	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperr.Validationf("Failed to read request body"))
		return
	}

	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		respondError(c, apperr.Validationf("%s", err.Error()))
		return
	}

	recipientEmail := utils.NormalizeEmail(req.RecipientEmail)
	if !utils.ValidEmail(recipientEmail) {
		respondError(c, apperr.Validationf("Invalid recipient email"))
		return
	}

	if req.SenderAddress != "" && !utils.ValidAddress(req.SenderAddress) {
		respondError(c, apperr.Validationf("Invalid sender address"))
		return
	}

	if req.Token == "" {
		req.Token = "APT"
	}
	if _, ok := chain.LookupToken(req.Token); !ok {
		respondError(c, apperr.Validationf("Unsupported token %s", req.Token))
		return
	}

	if err := requireDB(); err != nil {
		respondError(c, err)
		return
	}

	intent := db.PaymentIntent{
		PaymentID:      uuid.New().String(),
		Amount:         amount.String(),
		Token:          req.Token,
		RecipientEmail: recipientEmail,
		SenderAddress:  req.SenderAddress,
		Status:         db.StatusPending,
	}

	if err := db.DB.Create(&intent).Error; err != nil {
		respondError(c, apperr.Wrap(apperr.Unknown, "Failed to create payment", err))
		return
	}

	url := paymentURL(intent.PaymentID)

	// best effort; the link in the response is authoritative
	go email.SendPaymentLinkEmail(recipientEmail, url, intent.Amount, intent.Token)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"paymentId":  intent.PaymentID,
		"paymentUrl": url,
	})
}

// ClaimPayment attaches the claimant's resolved address to a pending intent.
// Status stays pending until the sender executes the transfer on chain; a
// claim on a non-pending intent is a conflict. The status check and write
// run inside one transaction under a row lock, so concurrent claims cannot
// both pass the check.
func ClaimPayment(c *gin.Context) {
	var req struct {
		PaymentID        string `json:"paymentId"`
		RecipientEmail   string `json:"recipientEmail"`
		RecipientAddress string `json:"recipientAddress"`
	}

	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperr.Validationf("Failed to read request body"))
		return
	}

	if req.PaymentID == "" {
		respondError(c, apperr.Validationf("paymentId is required"))
		return
	}

	recipientEmail := utils.NormalizeEmail(req.RecipientEmail)
	if !utils.ValidEmail(recipientEmail) {
		respondError(c, apperr.Validationf("Invalid recipient email"))
		return
	}

	if !utils.ValidAddress(req.RecipientAddress) {
		respondError(c, apperr.Validationf("Invalid recipient address"))
		return
	}

	if err := requireDB(); err != nil {
		respondError(c, err)
		return
	}

	var intent db.PaymentIntent
	err := db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("payment_id = ?", req.PaymentID).First(&intent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("Payment not found")
			}
			return err
		}

		if intent.Status != db.StatusPending {
			return apperr.Conflictf("Payment already %s", intent.Status)
		}

		intent.RecipientAddress = req.RecipientAddress
		if err := tx.Save(&intent).Error; err != nil {
			return err
		}

		return upsertIdentity(tx, recipientEmail, req.RecipientAddress)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment claimed, waiting for the sender to execute the transfer",
		"payment": viewOf(&intent),
	})
}

// UpdatePayment records the on-chain execution of a payment link. Repeated
// calls overwrite the hash and timestamp.
func UpdatePayment(c *gin.Context) {
	var req struct {
		PaymentID       string `json:"paymentId"`
		TransactionHash string `json:"transactionHash"`
		Status          string `json:"status"`
	}

	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperr.Validationf("Failed to read request body"))
		return
	}

	if req.PaymentID == "" {
		respondError(c, apperr.Validationf("paymentId is required"))
		return
	}

	if !utils.ValidTxHash(req.TransactionHash) {
		respondError(c, apperr.Validationf("Invalid transaction hash"))
		return
	}

	status := req.Status
	if status == "" {
		status = db.StatusClaimed
	}
	if status != db.StatusPending && status != db.StatusClaimed && status != db.StatusCancelled {
		respondError(c, apperr.Validationf("Unknown status %s", status))
		return
	}

	if err := requireDB(); err != nil {
		respondError(c, err)
		return
	}

	var intent db.PaymentIntent
	if err := db.DB.Where("payment_id = ?", req.PaymentID).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFoundf("Payment not found"))
			return
		}
		respondError(c, apperr.Wrap(apperr.Unknown, "Failed to load payment", err))
		return
	}

	now := time.Now()
	intent.TransactionHash = req.TransactionHash
	intent.Status = status
	intent.ClaimedAt = &now

	if err := db.DB.Save(&intent).Error; err != nil {
		respondError(c, apperr.Wrap(apperr.Unknown, "Failed to update payment", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payment": viewOf(&intent)})
}

func GetPayment(c *gin.Context) {
	if err := requireDB(); err != nil {
		respondError(c, err)
		return
	}

	var intent db.PaymentIntent
	if err := db.DB.Where("payment_id = ?", c.Param("id")).First(&intent).Error; err != nil {
		respondError(c, apperr.NotFoundf("Payment not found"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payment": viewOf(&intent)})
}

// PaymentQR renders the claim link as a QR code PNG.
func PaymentQR(c *gin.Context) {
	if err := requireDB(); err != nil {
		respondError(c, err)
		return
	}

	var intent db.PaymentIntent
	if err := db.DB.Where("payment_id = ?", c.Param("id")).First(&intent).Error; err != nil {
		respondError(c, apperr.NotFoundf("Payment not found"))
		return
	}

	png, err := qrcode.PaymentLinkPNG(paymentURL(intent.PaymentID))
	if err != nil {
		respondError(c, apperr.Wrap(apperr.Unknown, "Failed to render QR code", err))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
