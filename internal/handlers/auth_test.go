package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"servipay/internal/models"
)

func TestRegisterLoginRefresh(t *testing.T) {
	_, r := setupTest(t)

	token := registerUser(t, r, "user1", "client")
	if token == "" {
		t.Fatal("empty access token")
	}

	// login
	w := doJSON(t, r, "POST", "/auth/login", "", `{"username":"user1","password":"pass"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d", w.Code)
	}
	var tok TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil {
		t.Fatalf("login parse: %v", err)
	}

	// refresh
	w = doJSON(t, r, "POST", "/auth/refresh", "", `{"refresh_token":"`+tok.RefreshToken+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status %d", w.Code)
	}

	// старый refresh-токен одноразовый
	w = doJSON(t, r, "POST", "/auth/refresh", "", `{"refresh_token":"`+tok.RefreshToken+`"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh status %d", w.Code)
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	_, r := setupTest(t)

	w := doJSON(t, r, "POST", "/auth/register", "",
		`{"username":"boss","password":"pass","password_confirm":"pass","role":"admin"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("admin register status %d", w.Code)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	_, r := setupTest(t)
	registerUser(t, r, "dup", "client")

	w := doJSON(t, r, "POST", "/auth/register", "",
		`{"username":"dup","password":"pass","password_confirm":"pass","role":"client"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register status %d", w.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	_, r := setupTest(t)
	registerUser(t, r, "user2", "client")

	w := doJSON(t, r, "POST", "/auth/login", "", `{"username":"user2","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login status %d", w.Code)
	}
}

func TestProfileAndLogout(t *testing.T) {
	_, r := setupTest(t)
	token := registerUser(t, r, "user3", "provider")

	w := doJSON(t, r, "GET", "/auth/profile", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("profile status %d", w.Code)
	}
	var prof ProfileResponse
	json.Unmarshal(w.Body.Bytes(), &prof)
	if prof.Role != string(models.RoleProvider) {
		t.Fatalf("profile role %q", prof.Role)
	}

	w = doJSON(t, r, "POST", "/auth/logout", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("logout status %d", w.Code)
	}

	// токен отозван
	w = doJSON(t, r, "GET", "/auth/profile", token, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("profile after logout status %d", w.Code)
	}
}

func TestPayoutDestinationProviderOnly(t *testing.T) {
	_, r := setupTest(t)
	clientTok := registerUser(t, r, "cl", "client")
	providerTok := registerUser(t, r, "pr", "provider")

	body := `{"method":"wallet","walletID":"w-1"}`
	w := doJSON(t, r, "POST", "/auth/payout-destination", clientTok, body)
	if w.Code != http.StatusForbidden {
		t.Fatalf("client destination status %d", w.Code)
	}

	w = doJSON(t, r, "POST", "/auth/payout-destination", providerTok, body)
	if w.Code != http.StatusOK {
		t.Fatalf("provider destination status %d: %s", w.Code, w.Body.String())
	}

	// реквизиты проходят валидацию до сохранения
	w = doJSON(t, r, "POST", "/auth/payout-destination", providerTok, `{"method":"wallet"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid destination status %d", w.Code)
	}
}
