package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"aptlink/apperr"
	"aptlink/chain"
	"aptlink/utils"
)

type escrowActionRequest struct {
	EscrowID            string `json:"escrowId"`
	JWT                 string `json:"jwt"`
	EphemeralKeyPairStr string `json:"ephemeralKeyPairStr"`
}

// parseEscrowID validates the id before anything touches the chain.
func parseEscrowID(s string) (uint64, error) {
	if s == "" {
		return 0, apperr.Validationf("escrowId is required")
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, apperr.Validationf("escrowId must be a non-negative integer")
	}
	return id, nil
}

func GetEscrow(c *gin.Context) {
	id, err := parseEscrowID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	escrow, err := Chain.GetEscrow(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "escrow": escrow})
}

func EscrowStats(c *gin.Context) {
	stats, err := Chain.EscrowStats()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// ReleaseEscrow pays an active escrow out to its recipient. The chain
// enforces that the derived account actually is the recipient.
func ReleaseEscrow(c *gin.Context) {
	escrowAction(c, Chain.ReleaseEscrow)
}

// CancelEscrow refunds an active escrow to its sender.
func CancelEscrow(c *gin.Context) {
	escrowAction(c, Chain.CancelEscrow)
}

func escrowAction(c *gin.Context, action func(chain.Signer, uint64) (string, error)) {
	var req escrowActionRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperr.Validationf("Failed to read request body"))
		return
	}

	id, err := parseEscrowID(req.EscrowID)
	if err != nil {
		respondError(c, err)
		return
	}

	actor, err := deriveActor(req.JWT, req.EphemeralKeyPairStr)
	if err != nil {
		respondError(c, err)
		return
	}

	txHash, err := action(actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"transactionHash": txHash,
		"explorerUrl":     Chain.ExplorerURL(txHash),
	})
}

type createEscrowRequest struct {
	Amount              string `json:"amount"`
	RecipientAddress    string `json:"recipientAddress"`
	Token               string `json:"token"`
	JWT                 string `json:"jwt"`
	EphemeralKeyPairStr string `json:"ephemeralKeyPairStr"`
}

// CreateEscrow locks funds for a recipient until they release or the sender
// cancels.
func CreateEscrow(c *gin.Context) {
	var req createEscrowRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperr.Validationf("Failed to read request body"))
		return
	}

	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		respondError(c, apperr.Validationf("%s", err.Error()))
		return
	}

	if !utils.ValidAddress(req.RecipientAddress) {
		respondError(c, apperr.Validationf("Invalid recipient address"))
		return
	}

	if req.Token == "" {
		req.Token = "APT"
	}
	token, ok := chain.LookupToken(req.Token)
	if !ok {
		respondError(c, apperr.Validationf("Unsupported token %s", req.Token))
		return
	}
	if token.MetadataAddress != "" {
		respondError(c, apperr.Validationf("Escrow does not support %s", token.Symbol))
		return
	}

	actor, err := deriveActor(req.JWT, req.EphemeralKeyPairStr)
	if err != nil {
		respondError(c, err)
		return
	}

	txHash, err := Chain.CreateEscrow(actor, req.RecipientAddress, chain.ToBaseUnits(amount, token), token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"transactionHash": txHash,
		"explorerUrl":     Chain.ExplorerURL(txHash),
	})
}
