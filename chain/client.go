package chain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"aptlink/apperr"
	"aptlink/logger"
	"aptlink/utils"
)

const defaultMaxGas = 20000
const submissionExpiry = 2 * time.Minute
const confirmTimeout = 30 * time.Second
const confirmPollInterval = 500 * time.Millisecond

// Signer is anything that can authorize a transaction: keyless accounts
// implement it by combining an ephemeral signature with a derivation proof.
type Signer interface {
	Address() string
	Sign(signingMessage []byte) (sigType, publicKey, signature string, err error)
}

// Client is a thin façade over the Aptos fullnode REST API. It builds and
// submits JSON entry-function transactions; signing-message encoding is
// delegated to the node's encode_submission endpoint.
type Client struct {
	nodeURL      string
	network      string
	escrowModule string
	http         *http.Client
}

func New(nodeURL, network, escrowModule string) *Client {
	return &Client{
		nodeURL:      nodeURL,
		network:      network,
		escrowModule: escrowModule,
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

func FromEnv() *Client {
	return New(
		utils.Env("APTOS_NODE_URL", "https://fullnode.testnet.aptoslabs.com/v1"),
		utils.Env("APTOS_NETWORK", "testnet"),
		utils.Env("ESCROW_MODULE_ADDRESS", "0x1"),
	)
}

func (c *Client) ExplorerURL(txHash string) string {
	return fmt.Sprintf("https://explorer.aptoslabs.com/txn/%s?network=%s", txHash, c.network)
}

// SequenceNumber reads the account's next sequence number.
func (c *Client) SequenceNumber(address string) (uint64, error) {
	var info AccountInfo
	if err := c.get("/accounts/"+address, &info); err != nil {
		return 0, err
	}
	seq, err := strconv.ParseUint(info.SequenceNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad sequence number %q: %w", info.SequenceNumber, err)
	}
	return seq, nil
}

func (c *Client) GasUnitPrice() (uint64, error) {
	var est GasEstimate
	if err := c.get("/estimate_gas_price", &est); err != nil {
		return 0, err
	}
	return est.GasEstimate, nil
}

// View calls a Move view function and returns its raw return values.
func (c *Client) View(function string, typeArgs []string, args []any) ([]json.RawMessage, error) {
	if typeArgs == nil {
		typeArgs = []string{}
	}
	if args == nil {
		args = []any{}
	}

	var out []json.RawMessage
	err := c.post("/view", ViewRequest{Function: function, TypeArguments: typeArgs, Arguments: args}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitEntryFunction builds, signs and submits an entry-function
// transaction for the signer, returning the pending transaction hash.
// Submission blocks until the node accepts the transaction, not until
// it commits; use WaitForTransaction for that.
func (c *Client) SubmitEntryFunction(signer Signer, payload EntryFunctionPayload) (string, error) {
	seq, err := c.SequenceNumber(signer.Address())
	if err != nil {
		return "", err
	}

	gasPrice, err := c.GasUnitPrice()
	if err != nil {
		return "", err
	}

	tx := SubmitRequest{
		Sender:                  signer.Address(),
		SequenceNumber:          strconv.FormatUint(seq, 10),
		MaxGasAmount:            strconv.FormatUint(defaultMaxGas, 10),
		GasUnitPrice:            strconv.FormatUint(gasPrice, 10),
		ExpirationTimestampSecs: strconv.FormatInt(time.Now().Add(submissionExpiry).Unix(), 10),
		Payload:                 payload,
	}

	signingMessage, err := c.encodeSubmission(&tx)
	if err != nil {
		return "", err
	}

	sigType, pub, sig, err := signer.Sign(signingMessage)
	if err != nil {
		return "", err
	}
	tx.Signature = &TransactionSignature{Type: sigType, PublicKey: pub, Signature: sig}

	var pending PendingTransaction
	if err := c.post("/transactions", tx, &pending); err != nil {
		return "", err
	}

	logger.L.Info("transaction submitted", map[string]any{
		"hash":     pending.Hash,
		"sender":   signer.Address(),
		"function": payload.Function,
	})
	return pending.Hash, nil
}

// encodeSubmission asks the node for the exact bytes the signer must sign.
func (c *Client) encodeSubmission(tx *SubmitRequest) ([]byte, error) {
	var encoded string
	if err := c.post("/transactions/encode_submission", tx, &encoded); err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(trimHexPrefix(encoded))
	if err != nil {
		return nil, fmt.Errorf("bad signing message from node: %w", err)
	}
	return raw, nil
}

// WaitForTransaction polls until the transaction commits, times out, or the
// VM reports failure. VM failures come back as *VMError so callers can map
// abort codes instead of parsing prose.
func (c *Client) WaitForTransaction(txHash string) (*TransactionInfo, error) {
	deadline := time.Now().Add(confirmTimeout)

	for {
		var info TransactionInfo
		err := c.get("/transactions/by_hash/"+txHash, &info)
		if err == nil && info.Type != "pending_transaction" {
			if !info.Success {
				return &info, parseVMStatus(info.VMStatus)
			}
			return &info, nil
		}
		if err != nil {
			// the node 404s until the transaction reaches it
			var ne *NodeError
			if !asNodeError(err, &ne) || ne.StatusCode != http.StatusNotFound {
				return nil, err
			}
		}

		if time.Now().After(deadline) {
			return nil, apperr.Unavailablef("Transaction %s was not confirmed in time", txHash)
		}
		time.Sleep(confirmPollInterval)
	}
}

func (c *Client) get(path string, out any) error {
	req, err := http.NewRequest("GET", c.nodeURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", c.nodeURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "Blockchain node is unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ne nodeErrorBody
		if json.Unmarshal(body, &ne) == nil && ne.Message != "" {
			return &NodeError{StatusCode: resp.StatusCode, Code: ne.ErrorCode, Message: ne.Message, VMErrorCode: ne.VMErrorCode}
		}
		return &NodeError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0:2] == "0x" {
		return s[2:]
	}
	return s
}
