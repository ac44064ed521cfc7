package controllers

import (
	"strconv"
	"time"

	"aptlink/logger"
	"aptlink/utils"
	"aptlink/web/db"
)

// StartPaymentMonitor cancels payment links that were never executed. Runs
// forever; start once from main.
func StartPaymentMonitor(interval time.Duration) {
	go func() {
		logger.L.Info("starting payment monitor", map[string]any{"interval": interval.String()})
		for {
			ExpireStalePayments()
			time.Sleep(interval)
		}
	}()
}

// ExpireStalePayments transitions pending intents older than the configured
// TTL to cancelled. Intents are never deleted.
func ExpireStalePayments() {
	ttlHours, err := strconv.Atoi(utils.Env("PAYMENT_LINK_TTL_HOURS", "168"))
	if err != nil || ttlHours <= 0 {
		ttlHours = 168
	}
	cutoff := time.Now().Add(-time.Duration(ttlHours) * time.Hour)

	result := db.DB.Model(&db.PaymentIntent{}).
		Where("status = ? AND created_at < ?", db.StatusPending, cutoff).
		Update("status", db.StatusCancelled)
	if result.Error != nil {
		logger.L.Error("failed to expire stale payments", map[string]any{"error": result.Error.Error()})
		return
	}

	if result.RowsAffected > 0 {
		logger.L.Info("expired stale payment links", map[string]any{"count": result.RowsAffected})
	}
}
