package chain

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"aptlink/apperr"
)

// Token describes one of the supported assets. APT moves through the coin
// framework; USDC is a fungible asset addressed by its metadata object.
type Token struct {
	Symbol          string
	CoinType        string
	MetadataAddress string
	Decimals        int32
}

var Tokens = map[string]Token{
	"APT": {
		Symbol:   "APT",
		CoinType: "0x1::aptos_coin::AptosCoin",
		Decimals: 8,
	},
	"USDC": {
		Symbol:          "USDC",
		CoinType:        "0x1::aptos_coin::AptosCoin", // type arg unused for fungible assets
		MetadataAddress: "0xbae207659db88bea0cbead6da0ed00aac12edcdda169e591cd41c94180b46f3b",
		Decimals:        6,
	},
}

// LookupToken resolves a token symbol, case-sensitively ("APT", "USDC").
func LookupToken(symbol string) (Token, bool) {
	t, ok := Tokens[symbol]
	return t, ok
}

// ToBaseUnits converts a decimal token amount to chain base units (octas for
// APT). Truncates sub-unit dust rather than rounding up.
func ToBaseUnits(amount decimal.Decimal, token Token) uint64 {
	return uint64(amount.Shift(token.Decimals).IntPart())
}

// FromBaseUnits renders base units back into a decimal amount string.
func FromBaseUnits(base uint64, token Token) string {
	return decimal.NewFromInt(int64(base)).Shift(-token.Decimals).String()
}

// Balance reads the account's balance for token, in base units. A missing
// coin store reads as zero.
func (c *Client) Balance(address string, token Token) (uint64, error) {
	var rows []json.RawMessage
	var err error

	if token.MetadataAddress != "" {
		rows, err = c.View("0x1::primary_fungible_store::balance",
			[]string{"0x1::fungible_asset::Metadata"},
			[]any{address, token.MetadataAddress})
	} else {
		rows, err = c.View("0x1::coin::balance", []string{token.CoinType}, []any{address})
	}
	if err != nil {
		var nodeErr *NodeError
		if asNodeError(err, &nodeErr) && nodeErr.StatusCode == 404 {
			return 0, nil
		}
		return 0, translateChainError(err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var balance uint64
	if err := unmarshalU64String(rows[0], &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Transfer sends amount (base units) of token to recipient and waits for
// the transaction to commit.
func (c *Client) Transfer(signer Signer, recipient string, amount uint64, token Token) (string, error) {
	var payload EntryFunctionPayload
	if token.MetadataAddress != "" {
		payload = EntryFunctionPayload{
			Type:          "entry_function_payload",
			Function:      "0x1::primary_fungible_store::transfer",
			TypeArguments: []string{"0x1::fungible_asset::Metadata"},
			Arguments:     []any{token.MetadataAddress, recipient, strconv.FormatUint(amount, 10)},
		}
	} else {
		// aptos_account::transfer creates the recipient account if needed
		payload = EntryFunctionPayload{
			Type:          "entry_function_payload",
			Function:      "0x1::aptos_account::transfer",
			TypeArguments: []string{},
			Arguments:     []any{recipient, strconv.FormatUint(amount, 10)},
		}
	}

	hash, err := c.SubmitEntryFunction(signer, payload)
	if err != nil {
		return "", translateChainError(err)
	}
	if _, err := c.WaitForTransaction(hash); err != nil {
		return "", translateChainError(err)
	}
	return hash, nil
}

// ErrInsufficient reports a balance shortfall discovered before submission.
func ErrInsufficient(balance, needed uint64, token Token) error {
	return apperr.Validationf("Insufficient %s balance: have %s, need %s",
		token.Symbol, FromBaseUnits(balance, token), FromBaseUnits(needed, token))
}
