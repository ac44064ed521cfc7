package chain

import (
	"encoding/json"
	"strconv"

	"aptlink/apperr"
)

func (c *Client) escrowFunction(name string) string {
	return c.escrowModule + "::escrow::" + name
}

// GetEscrow reads one escrow record via the module's view function.
func (c *Client) GetEscrow(id uint64) (*Escrow, error) {
	rows, err := c.View(c.escrowFunction("get_escrow"), nil, []any{strconv.FormatUint(id, 10)})
	if err != nil {
		var nodeErr *NodeError
		if asNodeError(err, &nodeErr) && nodeErr.StatusCode == 404 {
			return nil, apperr.NotFoundf("Escrow %d not found", id)
		}
		return nil, translateChainError(err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFoundf("Escrow %d not found", id)
	}

	var escrow Escrow
	if err := json.Unmarshal(rows[0], &escrow); err != nil {
		return nil, apperr.Wrap(apperr.Unknown, "Malformed escrow record from chain", err)
	}
	escrow.ID = id
	return &escrow, nil
}

// EscrowStats reads platform-wide escrow totals.
func (c *Client) EscrowStats() (*EscrowStats, error) {
	rows, err := c.View(c.escrowFunction("get_stats"), nil, nil)
	if err != nil {
		return nil, translateChainError(err)
	}
	if len(rows) < 4 {
		return nil, apperr.Unavailablef("Escrow stats unavailable")
	}

	stats := &EscrowStats{}
	if err := unmarshalU64String(rows[0], &stats.TotalCreated); err != nil {
		return nil, err
	}
	if err := unmarshalU64String(rows[1], &stats.TotalReleased); err != nil {
		return nil, err
	}
	if err := unmarshalU64String(rows[2], &stats.TotalCancelled); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rows[3], &stats.TotalVolume); err != nil {
		return nil, err
	}
	return stats, nil
}

// CreateEscrow locks amount (base units) for recipient and returns the
// committed transaction hash. The escrow module holds coin assets; fungible
// assets have no escrow path and are rejected before submission.
func (c *Client) CreateEscrow(signer Signer, recipient string, amount uint64, token Token) (string, error) {
	if token.MetadataAddress != "" {
		return "", apperr.Validationf("Escrow does not support %s", token.Symbol)
	}
	payload := EntryFunctionPayload{
		Type:          "entry_function_payload",
		Function:      c.escrowFunction("create_escrow"),
		TypeArguments: []string{token.CoinType},
		Arguments:     []any{recipient, strconv.FormatUint(amount, 10)},
	}
	return c.submitEscrowTransaction(signer, payload)
}

// ReleaseEscrow asks the chain to pay out escrow id to its recipient. The
// chain enforces that only the recipient may release.
func (c *Client) ReleaseEscrow(signer Signer, id uint64) (string, error) {
	payload := EntryFunctionPayload{
		Type:          "entry_function_payload",
		Function:      c.escrowFunction("release_escrow"),
		TypeArguments: []string{},
		Arguments:     []any{strconv.FormatUint(id, 10)},
	}
	return c.submitEscrowTransaction(signer, payload)
}

// CancelEscrow asks the chain to refund escrow id to its sender. The chain
// enforces that only the sender may cancel.
func (c *Client) CancelEscrow(signer Signer, id uint64) (string, error) {
	payload := EntryFunctionPayload{
		Type:          "entry_function_payload",
		Function:      c.escrowFunction("cancel_escrow"),
		TypeArguments: []string{},
		Arguments:     []any{strconv.FormatUint(id, 10)},
	}
	return c.submitEscrowTransaction(signer, payload)
}

func (c *Client) submitEscrowTransaction(signer Signer, payload EntryFunctionPayload) (string, error) {
	hash, err := c.SubmitEntryFunction(signer, payload)
	if err != nil {
		return "", translateEscrowError(err)
	}
	if _, err := c.WaitForTransaction(hash); err != nil {
		return "", translateEscrowError(err)
	}
	return hash, nil
}

// the node returns u64 view values as JSON strings
func unmarshalU64String(raw json.RawMessage, out *uint64) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return apperr.Wrap(apperr.Unknown, "Malformed stats value from chain", err)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return apperr.Wrap(apperr.Unknown, "Malformed stats value from chain", err)
	}
	*out = v
	return nil
}
