package controllers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"aptlink/apperr"
	"aptlink/chain"
	"aptlink/keyless"
	"aptlink/utils"
	"aptlink/web/db"
)

// ChainService is what the escrow and transfer handlers need from the chain
// client. Kept as an interface so handler tests can run against a fake node.
type ChainService interface {
	GetEscrow(id uint64) (*chain.Escrow, error)
	EscrowStats() (*chain.EscrowStats, error)
	CreateEscrow(signer chain.Signer, recipient string, amount uint64, token chain.Token) (string, error)
	ReleaseEscrow(signer chain.Signer, id uint64) (string, error)
	CancelEscrow(signer chain.Signer, id uint64) (string, error)
	Balance(address string, token chain.Token) (uint64, error)
	Transfer(signer chain.Signer, recipient string, amount uint64, token chain.Token) (string, error)
	ExplorerURL(txHash string) string
}

// AccountDeriver reconstructs a keyless signing account from an identity
// token and the ephemeral key pair bound into its nonce.
type AccountDeriver interface {
	Derive(token string, ekp *keyless.EphemeralKeyPair) (chain.Signer, error)
}

var Chain ChainService
var Deriver AccountDeriver

type keylessDeriver struct {
	d *keyless.Deriver
}

func (k keylessDeriver) Derive(token string, ekp *keyless.EphemeralKeyPair) (chain.Signer, error) {
	return k.d.Derive(token, ekp)
}

// UseKeylessDeriver wires the real pepper/prover-backed deriver in.
func UseKeylessDeriver(d *keyless.Deriver) {
	Deriver = keylessDeriver{d}
}

func respondError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"success": false,
		"error":   apperr.Message(err),
	})
}

func requireDB() error {
	if db.DB == nil {
		return apperr.Unavailablef("No database connection")
	}
	return nil
}

// deriveActor turns the request's identity token and serialized ephemeral
// key pair into the acting on-chain account.
func deriveActor(jwtStr, ekpStr string) (chain.Signer, error) {
	if jwtStr == "" || ekpStr == "" {
		return nil, apperr.Validationf("jwt and ephemeralKeyPairStr are required")
	}

	ekp, err := keyless.ParseEphemeralKeyPair(ekpStr)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "Invalid ephemeral key pair", err)
	}

	return Deriver.Derive(jwtStr, ekp)
}

// keylessPair parses the serialized ephemeral key pair and, when the client
// also sent its login nonce, checks the pair still commits to it.
func keylessPair(ekpStr, nonce string) (*keyless.EphemeralKeyPair, error) {
	ekp, err := keyless.ParseEphemeralKeyPair(ekpStr)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "Invalid ephemeral key pair", err)
	}
	if nonce != "" && ekp.Nonce() != nonce {
		return nil, apperr.Authorizationf("Nonce does not match the session key")
	}
	return ekp, nil
}

func paymentURL(paymentID string) string {
	return fmt.Sprintf("%s/claim/%s", utils.Env("FRONTEND_URL", "http://localhost:3000"), paymentID)
}

// paymentView is the JSON shape of a payment intent in responses.
type paymentView struct {
	PaymentID        string     `json:"paymentId"`
	Amount           string     `json:"amount"`
	Token            string     `json:"token"`
	RecipientEmail   string     `json:"recipientEmail"`
	SenderAddress    string     `json:"senderAddress,omitempty"`
	RecipientAddress string     `json:"recipientAddress,omitempty"`
	Status           string     `json:"status"`
	TransactionHash  string     `json:"transactionHash,omitempty"`
	ClaimedAt        *time.Time `json:"claimedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func viewOf(p *db.PaymentIntent) paymentView {
	return paymentView{
		PaymentID:        p.PaymentID,
		Amount:           p.Amount,
		Token:            p.Token,
		RecipientEmail:   p.RecipientEmail,
		SenderAddress:    p.SenderAddress,
		RecipientAddress: p.RecipientAddress,
		Status:           p.Status,
		TransactionHash:  p.TransactionHash,
		ClaimedAt:        p.ClaimedAt,
		CreatedAt:        p.CreatedAt,
	}
}
