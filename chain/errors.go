package chain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"aptlink/apperr"
)

// Abort codes raised by the escrow Move module.
const (
	AbortEscrowNotFound    = 1
	AbortNotSender         = 2
	AbortNotRecipient      = 3
	AbortAlreadyReleased   = 4
	AbortAlreadyCancelled  = 5
	AbortInsufficientFunds = 6
)

// NodeError is a non-2xx response from the fullnode.
type NodeError struct {
	StatusCode  int
	Code        string
	Message     string
	VMErrorCode *int64
}

func (e *NodeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("node error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("node error %d: %s", e.StatusCode, e.Message)
}

func asNodeError(err error, target **NodeError) bool {
	return errors.As(err, target)
}

// VMError is an on-chain execution failure with the Move abort location and
// code extracted, so callers match on numbers rather than message prose.
type VMError struct {
	Module    string
	AbortCode int64
	Status    string
}

func (e *VMError) Error() string {
	if e.AbortCode >= 0 {
		return fmt.Sprintf("move abort in %s: code %d", e.Module, e.AbortCode)
	}
	return e.Status
}

// vm_status for aborts looks like:
//
//	Move abort in 0xabc::escrow: E_NOT_SENDER(0x2): only the sender may cancel
//	Move abort in 0x1::coin: 0x10006
var abortPattern = regexp.MustCompile(`Move abort in ([0-9a-fA-Fx]+::\w+)(?::\s*(?:\w+\()?(0x[0-9a-fA-F]+|\d+))?`)

func parseVMStatus(status string) *VMError {
	vmErr := &VMError{Status: status, AbortCode: -1}

	m := abortPattern.FindStringSubmatch(status)
	if m == nil {
		return vmErr
	}

	vmErr.Module = m[1]
	if m[2] != "" {
		code, err := strconv.ParseInt(strings.TrimPrefix(m[2], "0x"), baseFor(m[2]), 64)
		if err == nil {
			// Move packs an error category into the upper bits; the
			// module-defined reason is the low 16.
			vmErr.AbortCode = code & 0xffff
		}
	}
	return vmErr
}

func baseFor(s string) int {
	if strings.HasPrefix(s, "0x") {
		return 16
	}
	return 10
}

// translateEscrowError maps chain failures on escrow transactions to the
// user-facing taxonomy. Known abort codes get stable messages; anything
// else falls through with the raw status attached.
func translateEscrowError(err error) error {
	var vmErr *VMError
	if errors.As(err, &vmErr) && strings.HasSuffix(vmErr.Module, "::escrow") {
		switch vmErr.AbortCode {
		case AbortEscrowNotFound:
			return apperr.NotFoundf("Escrow not found")
		case AbortNotSender:
			return apperr.Authorizationf("Only the escrow sender can cancel this escrow")
		case AbortNotRecipient:
			return apperr.Authorizationf("Only the escrow recipient can release this escrow")
		case AbortAlreadyReleased:
			return apperr.Finalizedf("Escrow has already been released")
		case AbortAlreadyCancelled:
			return apperr.Finalizedf("Escrow has already been cancelled")
		case AbortInsufficientFunds:
			return apperr.Validationf("Insufficient balance to fund the escrow")
		}
	}
	return translateChainError(err)
}

// translateChainError handles failures common to every transaction. Only
// transport-level errors still rely on substring matching.
func translateChainError(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var vmErr *VMError
	if errors.As(err, &vmErr) {
		if strings.Contains(vmErr.Status, "INSUFFICIENT_BALANCE") {
			return apperr.Validationf("Insufficient balance to pay for the transaction")
		}
		if strings.Contains(vmErr.Status, "SEQUENCE_NUMBER") {
			return apperr.Conflictf("Transaction sequence conflict, please retry")
		}
		return apperr.Wrap(apperr.Unknown, vmErr.Status, err)
	}

	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		if nodeErr.StatusCode == 404 {
			return apperr.Wrap(apperr.NotFound, "Not found on chain", err)
		}
		return apperr.Wrap(apperr.Unknown, nodeErr.Message, err)
	}

	return apperr.Wrap(apperr.Unknown, err.Error(), err)
}
