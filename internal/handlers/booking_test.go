package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"servipay/internal/models"
)

func TestBookingLifecycle(t *testing.T) {
	db, r := setupTest(t)
	clientTok := registerUser(t, r, "bclient", "client")
	providerTok := registerUser(t, r, "bprovider", "provider")

	var provider models.User
	db.Where("username = ?", "bprovider").First(&provider)

	body := fmt.Sprintf(`{"providerID":%q,"service":"garden work"}`, provider.ID)
	w := doJSON(t, r, "POST", "/bookings", clientTok, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create booking status %d: %s", w.Code, w.Body.String())
	}
	var booking models.Booking
	json.Unmarshal(w.Body.Bytes(), &booking)
	if booking.Status != models.BookingStatusPending {
		t.Fatalf("booking status %s", booking.Status)
	}

	// подтверждение доступно только исполнителю заказа
	w = doJSON(t, r, "POST", "/bookings/"+booking.ID+"/confirm", clientTok, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("client confirm status %d", w.Code)
	}

	w = doJSON(t, r, "POST", "/bookings/"+booking.ID+"/confirm", providerTok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status %d: %s", w.Code, w.Body.String())
	}

	// завершение до подтверждения уже невозможно — статус ушёл вперёд
	w = doJSON(t, r, "POST", "/bookings/"+booking.ID+"/confirm", providerTok, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("double confirm status %d", w.Code)
	}

	w = doJSON(t, r, "POST", "/bookings/"+booking.ID+"/complete", providerTok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("complete status %d", w.Code)
	}

	// завершённый заказ не отменяется
	w = doJSON(t, r, "POST", "/bookings/"+booking.ID+"/cancel", clientTok, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel completed status %d", w.Code)
	}

	w = doJSON(t, r, "GET", "/bookings", clientTok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status %d", w.Code)
	}
	var list []models.Booking
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(list))
	}
}

func TestBookingProviderOnly(t *testing.T) {
	_, r := setupTest(t)
	providerTok := registerUser(t, r, "ponly", "provider")

	w := doJSON(t, r, "POST", "/bookings", providerTok, `{"providerID":"x","service":"y"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("provider create booking status %d", w.Code)
	}
}
