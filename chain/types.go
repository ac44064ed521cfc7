package chain

// Typed views of the Aptos fullnode REST API (v1) responses and requests.

type AccountInfo struct {
	SequenceNumber    string `json:"sequence_number"`
	AuthenticationKey string `json:"authentication_key"`
}

type GasEstimate struct {
	GasEstimate uint64 `json:"gas_estimate"`
}

type PendingTransaction struct {
	Hash string `json:"hash"`
}

type TransactionInfo struct {
	Type     string `json:"type"`
	Hash     string `json:"hash"`
	Version  string `json:"version"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
}

type EntryFunctionPayload struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

type TransactionSignature struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

type SubmitRequest struct {
	Sender                  string                `json:"sender"`
	SequenceNumber          string                `json:"sequence_number"`
	MaxGasAmount            string                `json:"max_gas_amount"`
	GasUnitPrice            string                `json:"gas_unit_price"`
	ExpirationTimestampSecs string                `json:"expiration_timestamp_secs"`
	Payload                 EntryFunctionPayload  `json:"payload"`
	Signature               *TransactionSignature `json:"signature,omitempty"`
}

type ViewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

type nodeErrorBody struct {
	Message     string `json:"message"`
	ErrorCode   string `json:"error_code"`
	VMErrorCode *int64 `json:"vm_error_code"`
}

// Escrow mirrors the on-chain escrow record. This service never mutates it
// directly; it only submits transactions that request a transition.
type Escrow struct {
	ID        uint64 `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	Status    string `json:"status"`
}

const (
	EscrowActive    = "active"
	EscrowReleased  = "released"
	EscrowCancelled = "cancelled"
)

type EscrowStats struct {
	TotalCreated   uint64 `json:"totalCreated"`
	TotalReleased  uint64 `json:"totalReleased"`
	TotalCancelled uint64 `json:"totalCancelled"`
	TotalVolume    string `json:"totalVolume"`
}
