package db

import (
	"time"

	"gorm.io/gorm"
)

// Payment intent statuses. Intents are never deleted, only transitioned.
const (
	StatusPending   = "pending"
	StatusClaimed   = "claimed"
	StatusCancelled = "cancelled"
)

type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex"`
	AptosAddress string
}

// EmailMapping resolves a human-readable recipient to an on-chain address.
// Upserted whenever a user authenticates, registers, or claims a payment.
type EmailMapping struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex"`
	AptosAddress string
}

// PaymentIntent is the off-chain record behind a payment link. Created
// pending on link generation; the recipient address lands on claim; the
// transaction hash and claimed status land when the sender executes.
type PaymentIntent struct {
	gorm.Model
	PaymentID        string `gorm:"uniqueIndex"`
	Amount           string // decimal string, whole tokens
	Token            string
	RecipientEmail   string `gorm:"index"`
	SenderAddress    string
	RecipientAddress string
	Status           string `gorm:"index"`
	TransactionHash  string
	ClaimedAt        *time.Time
}
