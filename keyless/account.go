package keyless

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/sha3"

	"aptlink/apperr"
	"aptlink/utils"
)

// keylessScheme is the authentication-key scheme byte for keyless accounts.
const keylessScheme byte = 0x03

// Account is a blockchain account reconstructed from an OAuth identity token
// and the ephemeral key pair bound into the token's nonce. It can sign
// transactions without any persisted private key.
type Account struct {
	address  string
	issuer   string
	subject  string
	audience string

	ekp    *EphemeralKeyPair
	pepper []byte
	proof  []byte
}

func (a *Account) Address() string {
	return a.address
}

func (a *Account) Issuer() string {
	return a.issuer
}

// Sign produces the keyless signature over a transaction signing message.
// The ephemeral key signs; the zero-knowledge proof fetched at derivation
// vouches that the ephemeral key was bound into a valid identity token.
func (a *Account) Sign(signingMessage []byte) (sigType, publicKey, signature string, err error) {
	if a.ekp.Expired() {
		return "", "", "", apperr.Authorizationf("Session key expired, please sign in again")
	}

	ephSig := a.ekp.Sign(signingMessage)

	var buf bytes.Buffer
	writeBytes(&buf, a.proof)
	writeBytes(&buf, a.ekp.PublicKey())
	writeBytes(&buf, ephSig)

	var expiry [8]byte
	binary.BigEndian.PutUint64(expiry[:], uint64(a.ekp.ExpiresAt.Unix()))
	buf.Write(expiry[:])

	return "keyless_signature", a.publicKeyHex(), hex.EncodeToString(buf.Bytes()), nil
}

// publicKeyHex is the keyless public key: the issuer plus the identity
// commitment over (sub, aud, pepper).
func (a *Account) publicKeyHex() string {
	var buf bytes.Buffer
	writeBytes(&buf, []byte(a.issuer))
	buf.Write(identityCommitment(a.subject, a.audience, a.pepper))
	return "0x" + hex.EncodeToString(buf.Bytes())
}

// Deriver reconstructs keyless accounts. Pepper and proof come from the
// network's pepper and prover services; everything else is local.
type Deriver struct {
	PepperURL string
	ProverURL string
	Client    *http.Client
}

func NewDeriver() *Deriver {
	return &Deriver{
		PepperURL: utils.Env("PEPPER_SERVICE_URL", "https://api.testnet.aptoslabs.com/keyless/pepper/v0"),
		ProverURL: utils.Env("PROVER_SERVICE_URL", "https://api.testnet.aptoslabs.com/keyless/prover/v0"),
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Derive validates the identity token against the ephemeral key pair and
// reconstructs the signing account. Fails with an authorization error when
// the token is malformed, expired, or its nonce does not commit to ekp.
func (d *Deriver) Derive(token string, ekp *EphemeralKeyPair) (*Account, error) {
	if ekp.Expired() {
		return nil, apperr.Authorizationf("Ephemeral key pair expired, please sign in again")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, apperr.Wrap(apperr.Authorization, "Invalid identity token", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, apperr.Authorizationf("Identity token has no expiry")
	}
	if exp.Before(time.Now()) {
		return nil, apperr.Authorizationf("Identity token expired, please sign in again")
	}

	nonce, _ := claims["nonce"].(string)
	if nonce == "" || nonce != ekp.Nonce() {
		return nil, apperr.Authorizationf("Identity token does not match the session key")
	}

	iss, _ := claims.GetIssuer()
	sub, _ := claims.GetSubject()
	aud, err := claims.GetAudience()
	if iss == "" || sub == "" || err != nil || len(aud) == 0 {
		return nil, apperr.Authorizationf("Identity token is missing required claims")
	}

	pepper, err := d.fetchPepper(token, ekp)
	if err != nil {
		return nil, err
	}

	proof, err := d.fetchProof(token, ekp, pepper)
	if err != nil {
		return nil, err
	}

	return &Account{
		address:  DeriveAddress(iss, sub, aud[0], pepper),
		issuer:   iss,
		subject:  sub,
		audience: aud[0],
		ekp:      ekp,
		pepper:   pepper,
		proof:    proof,
	}, nil
}

// DeriveAddress computes the account address from the token identity and the
// pepper. The same (issuer, subject, audience, pepper) always lands on the
// same address, which is what makes the account durable across sessions.
func DeriveAddress(iss, sub, aud string, pepper []byte) string {
	var buf bytes.Buffer
	writeBytes(&buf, []byte(iss))
	buf.Write(identityCommitment(sub, aud, pepper))
	buf.WriteByte(keylessScheme)

	sum := sha3.Sum256(buf.Bytes())
	return "0x" + hex.EncodeToString(sum[:])
}

func identityCommitment(sub, aud string, pepper []byte) []byte {
	h := sha3.New256()
	writeBytes(h, []byte(sub))
	writeBytes(h, []byte(aud))
	writeBytes(h, pepper)
	return h.Sum(nil)
}

type pepperRequest struct {
	JWT          string `json:"jwt_b64"`
	EphemeralKey string `json:"epk"`
	Expiry       int64  `json:"exp_date_secs"`
	Blinder      string `json:"epk_blinder"`
}

type pepperResponse struct {
	Pepper string `json:"pepper"`
}

func (d *Deriver) fetchPepper(token string, ekp *EphemeralKeyPair) ([]byte, error) {
	var resp pepperResponse
	err := d.post(d.PepperURL+"/fetch", pepperRequest{
		JWT:          token,
		EphemeralKey: hex.EncodeToString(ekp.PublicKey()),
		Expiry:       ekp.ExpiresAt.Unix(),
		Blinder:      hex.EncodeToString(ekp.Blinder),
	}, &resp)
	if err != nil {
		return nil, apperr.Wrap(apperr.Authorization, "Failed to derive account identity", err)
	}

	pepper, err := hex.DecodeString(trimHexPrefix(resp.Pepper))
	if err != nil || len(pepper) == 0 {
		return nil, apperr.Authorizationf("Pepper service returned an invalid pepper")
	}
	return pepper, nil
}

type proverRequest struct {
	JWT          string `json:"jwt_b64"`
	EphemeralKey string `json:"epk"`
	Expiry       int64  `json:"exp_date_secs"`
	Blinder      string `json:"epk_blinder"`
	Pepper       string `json:"pepper"`
}

type proverResponse struct {
	Proof string `json:"proof"`
}

func (d *Deriver) fetchProof(token string, ekp *EphemeralKeyPair, pepper []byte) ([]byte, error) {
	var resp proverResponse
	err := d.post(d.ProverURL+"/prove", proverRequest{
		JWT:          token,
		EphemeralKey: hex.EncodeToString(ekp.PublicKey()),
		Expiry:       ekp.ExpiresAt.Unix(),
		Blinder:      hex.EncodeToString(ekp.Blinder),
		Pepper:       hex.EncodeToString(pepper),
	}, &resp)
	if err != nil {
		return nil, apperr.Wrap(apperr.Authorization, "Failed to prove account ownership", err)
	}

	proof, err := hex.DecodeString(trimHexPrefix(resp.Proof))
	if err != nil || len(proof) == 0 {
		return nil, apperr.Authorizationf("Prover service returned an invalid proof")
	}
	return proof, nil
}

func (d *Deriver) post(url string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %s", url, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0:2] == "0x" {
		return s[2:]
	}
	return s
}

// writeBytes writes a length-prefixed byte string, so concatenated fields
// cannot collide.
func writeBytes(w io.Writer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	w.Write(n[:])
	w.Write(b)
}
