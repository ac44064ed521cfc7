package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aptlink/apperr"
	"aptlink/utils"
	"aptlink/web/db"
)

// upsertIdentity keeps the user record and the email→address mapping in
// step. Called on registration and on payment claims.
func upsertIdentity(tx *gorm.DB, emailAddr, aptosAddress string) error {
	onEmailConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"aptos_address", "updated_at"}),
	}

	user := db.User{Email: emailAddr, AptosAddress: aptosAddress}
	if err := tx.Clauses(onEmailConflict).Create(&user).Error; err != nil {
		return err
	}

	mapping := db.EmailMapping{Email: emailAddr, AptosAddress: aptosAddress}
	return tx.Clauses(onEmailConflict).Create(&mapping).Error
}

// RegisterUser records (or refreshes) the mapping from an authenticated
// user's email to their derived on-chain address.
func RegisterUser(c *gin.Context) {
	var req struct {
		Email        string `json:"email"`
		AptosAddress string `json:"aptosAddress"`
	}

	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperr.Validationf("Failed to read request body"))
		return
	}

	emailAddr := utils.NormalizeEmail(req.Email)
	if !utils.ValidEmail(emailAddr) {
		respondError(c, apperr.Validationf("Invalid email"))
		return
	}

	if !utils.ValidAddress(req.AptosAddress) {
		respondError(c, apperr.Validationf("Invalid Aptos address"))
		return
	}

	if err := requireDB(); err != nil {
		respondError(c, err)
		return
	}

	if err := upsertIdentity(db.DB, emailAddr, req.AptosAddress); err != nil {
		respondError(c, apperr.Wrap(apperr.Unknown, "Failed to register user", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "User registered",
		"email":        emailAddr,
		"aptosAddress": req.AptosAddress,
	})
}

// ResolveEmail looks up the on-chain address previously registered for an
// email, so senders can address payments to people instead of hex strings.
func ResolveEmail(c *gin.Context) {
	emailAddr := utils.NormalizeEmail(c.Query("email"))
	if !utils.ValidEmail(emailAddr) {
		respondError(c, apperr.Validationf("Invalid email"))
		return
	}

	if err := requireDB(); err != nil {
		respondError(c, err)
		return
	}

	var mapping db.EmailMapping
	if err := db.DB.Where("email = ?", emailAddr).First(&mapping).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFoundf("No address registered for %s", emailAddr))
			return
		}
		respondError(c, apperr.Wrap(apperr.Unknown, "Failed to resolve email", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"email":        mapping.Email,
		"aptosAddress": mapping.AptosAddress,
	})
}
