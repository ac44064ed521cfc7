package controllers

import (
	"net/http"
	"testing"

	"aptlink/web/db"
)

func TestRegisterAndResolve(t *testing.T) {
	r, _, _ := setup(t)

	w, resp := doJSON(t, r, "POST", "/register-user", map[string]any{
		"email": "Bob@Example.com", "aptosAddress": actorAddr,
	})
	if w.Code != http.StatusOK {
		t.Fatal("register failed:", w.Code, w.Body.String())
	}
	if resp["email"] != "bob@example.com" {
		t.Error("email was not normalized:", resp["email"])
	}

	w, resp = doJSON(t, r, "GET", "/users/resolve?email=bob@example.com", nil)
	if w.Code != http.StatusOK {
		t.Fatal("resolve failed:", w.Code, w.Body.String())
	}
	if resp["aptosAddress"] != actorAddr {
		t.Error("resolved the wrong address:", resp)
	}
}

func TestRegisterOverwritesExistingMapping(t *testing.T) {
	r, _, _ := setup(t)

	doJSON(t, r, "POST", "/register-user", map[string]any{
		"email": "bob@example.com", "aptosAddress": actorAddr,
	})
	doJSON(t, r, "POST", "/register-user", map[string]any{
		"email": "bob@example.com", "aptosAddress": otherAddr,
	})

	_, resp := doJSON(t, r, "GET", "/users/resolve?email=bob@example.com", nil)
	if resp["aptosAddress"] != otherAddr {
		t.Error("re-registration did not refresh the mapping:", resp)
	}

	// one row per email, not one per registration
	var count int64
	db.DB.Model(&db.User{}).Where("email = ?", "bob@example.com").Count(&count)
	if count != 1 {
		t.Error("expected a single user row, got", count)
	}
}

func TestRegisterValidation(t *testing.T) {
	r, _, _ := setup(t)

	w, _ := doJSON(t, r, "POST", "/register-user", map[string]any{
		"email": "not-an-email", "aptosAddress": actorAddr,
	})
	if w.Code != http.StatusBadRequest {
		t.Error("expected 400 for a bad email, got", w.Code)
	}

	w, _ = doJSON(t, r, "POST", "/register-user", map[string]any{
		"email": "bob@example.com", "aptosAddress": "0x123",
	})
	if w.Code != http.StatusBadRequest {
		t.Error("expected 400 for a short address, got", w.Code)
	}
}

func TestResolveUnknownEmail(t *testing.T) {
	r, _, _ := setup(t)

	w, _ := doJSON(t, r, "GET", "/users/resolve?email=nobody@example.com", nil)
	if w.Code != http.StatusNotFound {
		t.Error("expected 404, got", w.Code)
	}

	w, _ = doJSON(t, r, "GET", "/users/resolve?email=garbage", nil)
	if w.Code != http.StatusBadRequest {
		t.Error("expected 400 for an invalid email, got", w.Code)
	}
}
