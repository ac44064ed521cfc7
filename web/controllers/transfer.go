package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aptlink/apperr"
	"aptlink/chain"
	"aptlink/utils"
)

// SendDirect executes a wallet-to-wallet transfer signed by the derived
// keyless account. The balance is checked before submission so a shortfall
// comes back as a named validation error instead of a chain rejection.
func SendDirect(c *gin.Context) {
	var req struct {
		Amount              string `json:"amount"`
		RecipientAddress    string `json:"recipientAddress"`
		JWT                 string `json:"jwt"`
		Nonce               string `json:"nonce"`
		Token               string `json:"token"`
		EphemeralKeyPairStr string `json:"ephemeralKeyPairStr"`
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

	if req.JWT == "" || req.EphemeralKeyPairStr == "" {
		respondError(c, apperr.Validationf("jwt and ephemeralKeyPairStr are required"))
		return
	}

	ekp, err := keylessPair(req.EphemeralKeyPairStr, req.Nonce)
	if err != nil {
		respondError(c, err)
		return
	}

	actor, err := Deriver.Derive(req.JWT, ekp)
	if err != nil {
		respondError(c, err)
		return
	}

	needed := chain.ToBaseUnits(amount, token)
	balance, err := Chain.Balance(actor.Address(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	if balance < needed {
		respondError(c, chain.ErrInsufficient(balance, needed, token))
		return
	}

	txHash, err := Chain.Transfer(actor, req.RecipientAddress, needed, token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"transactionHash":  txHash,
		"amount":           req.Amount,
		"token":            token.Symbol,
		"recipientAddress": req.RecipientAddress,
	})
}
