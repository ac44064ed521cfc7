package keyless

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

const blinderLen = 31
const DefaultEphemeralLifetime = 24 * time.Hour

// EphemeralKeyPair is the short-lived signing key generated before the OAuth
// redirect. Its nonce is bound into the identity token's nonce claim, and the
// pair is consumed once to finish account derivation after the redirect.
type EphemeralKeyPair struct {
	PrivateKey ed25519.PrivateKey
	Blinder    []byte
	ExpiresAt  time.Time
}

func GenerateEphemeralKeyPair() (*EphemeralKeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	blinder := make([]byte, blinderLen)
	if _, err := rand.Read(blinder); err != nil {
		return nil, err
	}

	return &EphemeralKeyPair{
		PrivateKey: priv,
		Blinder:    blinder,
		ExpiresAt:  time.Now().Add(DefaultEphemeralLifetime).Truncate(time.Second),
	}, nil
}

func (e *EphemeralKeyPair) PublicKey() ed25519.PublicKey {
	return e.PrivateKey.Public().(ed25519.PublicKey)
}

func (e *EphemeralKeyPair) Expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Nonce commits to the public key, expiry and blinder. The OAuth flow puts
// this value in the token's nonce claim, which ties the token to this pair.
func (e *EphemeralKeyPair) Nonce() string {
	h := sha3.New256()
	h.Write(e.PublicKey())

	var expiry [8]byte
	binary.BigEndian.PutUint64(expiry[:], uint64(e.ExpiresAt.Unix()))
	h.Write(expiry[:])

	h.Write(e.Blinder)
	return hex.EncodeToString(h.Sum(nil))
}

func (e *EphemeralKeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(e.PrivateKey, msg)
}

type serializedEKP struct {
	PrivateKey string `json:"private_key"`
	Blinder    string `json:"blinder"`
	ExpiresAt  int64  `json:"expires_at"`
}

// Serialize encodes the pair in the form the browser holds between the login
// redirect and the callback.
func (e *EphemeralKeyPair) Serialize() (string, error) {
	raw, err := json.Marshal(serializedEKP{
		PrivateKey: hex.EncodeToString(e.PrivateKey.Seed()),
		Blinder:    hex.EncodeToString(e.Blinder),
		ExpiresAt:  e.ExpiresAt.Unix(),
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func ParseEphemeralKeyPair(s string) (*EphemeralKeyPair, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid ephemeral key pair encoding: %w", err)
	}

	var enc serializedEKP
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("invalid ephemeral key pair payload: %w", err)
	}

	seed, err := hex.DecodeString(enc.PrivateKey)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid ephemeral private key")
	}

	blinder, err := hex.DecodeString(enc.Blinder)
	if err != nil || len(blinder) != blinderLen {
		return nil, fmt.Errorf("invalid ephemeral blinder")
	}

	return &EphemeralKeyPair{
		PrivateKey: ed25519.NewKeyFromSeed(seed),
		Blinder:    blinder,
		ExpiresAt:  time.Unix(enc.ExpiresAt, 0),
	}, nil
}
