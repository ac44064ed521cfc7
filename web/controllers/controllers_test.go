package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"aptlink/apperr"
	"aptlink/chain"
	"aptlink/keyless"
	"aptlink/web/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const actorAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const otherAddr = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

type fakeActor struct {
	addr string
}

func (f *fakeActor) Address() string { return f.addr }

func (f *fakeActor) Sign([]byte) (string, string, string, error) {
	return "keyless_signature", "0xpub", "0xsig", nil
}

type fakeDeriver struct {
	calls int
	err   error
}

func (f *fakeDeriver) Derive(string, *keyless.EphemeralKeyPair) (chain.Signer, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fakeActor{addr: actorAddr}, nil
}

type fakeChain struct {
	escrows map[uint64]*chain.Escrow
	stats   *chain.EscrowStats
	balance uint64
	txErr   error

	getCalls      int
	releaseCalls  int
	cancelCalls   int
	createCalls   int
	balanceCalls  int
	transferCalls int
}

func (f *fakeChain) GetEscrow(id uint64) (*chain.Escrow, error) {
	f.getCalls++
	if e, ok := f.escrows[id]; ok {
		return e, nil
	}
	return nil, apperr.NotFoundf("Escrow %d not found", id)
}

func (f *fakeChain) EscrowStats() (*chain.EscrowStats, error) {
	if f.stats == nil {
		return &chain.EscrowStats{}, nil
	}
	return f.stats, nil
}

func (f *fakeChain) CreateEscrow(chain.Signer, string, uint64, chain.Token) (string, error) {
	f.createCalls++
	if f.txErr != nil {
		return "", f.txErr
	}
	return "0xhash", nil
}

func (f *fakeChain) ReleaseEscrow(chain.Signer, uint64) (string, error) {
	f.releaseCalls++
	if f.txErr != nil {
		return "", f.txErr
	}
	return "0xhash", nil
}

func (f *fakeChain) CancelEscrow(chain.Signer, uint64) (string, error) {
	f.cancelCalls++
	if f.txErr != nil {
		return "", f.txErr
	}
	return "0xhash", nil
}

func (f *fakeChain) Balance(string, chain.Token) (uint64, error) {
	f.balanceCalls++
	return f.balance, nil
}

func (f *fakeChain) Transfer(chain.Signer, string, uint64, chain.Token) (string, error) {
	f.transferCalls++
	if f.txErr != nil {
		return "", f.txErr
	}
	return "0xhash", nil
}

func (f *fakeChain) ExplorerURL(txHash string) string {
	return "https://explorer.test/txn/" + txHash
}

// setup wires fakes, a fresh sqlite database, and the router.
func setup(t *testing.T) (*gin.Engine, *fakeChain, *fakeDeriver) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := gdb.AutoMigrate(&db.User{}, &db.EmailMapping{}, &db.PaymentIntent{}); err != nil {
		t.Fatal(err)
	}
	db.DB = gdb

	fc := &fakeChain{escrows: map[uint64]*chain.Escrow{}, balance: 1 << 62}
	fd := &fakeDeriver{}
	Chain = fc
	Deriver = fd

	r := gin.New()
	r.GET("/escrow/stats", EscrowStats)
	r.GET("/escrow/:id", GetEscrow)
	r.POST("/escrow/create", CreateEscrow)
	r.POST("/escrow/release", ReleaseEscrow)
	r.POST("/escrow/cancel", CancelEscrow)
	r.POST("/payments/create", CreatePayment)
	r.POST("/payments/claim", ClaimPayment)
	r.POST("/payments/update", UpdatePayment)
	r.POST("/payments/send-direct", SendDirect)
	r.GET("/payments/:id", GetPayment)
	r.GET("/payments/:id/qr", PaymentQR)
	r.POST("/register-user", RegisterUser)
	r.GET("/users/resolve", ResolveEmail)

	return r, fc, fd
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	resp := map[string]any{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

// serializedEKP returns auth material the fake deriver will accept.
func serializedEKP(t *testing.T) string {
	t.Helper()
	ekp, err := keyless.GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	s, err := ekp.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	return s
}
