package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"servipay/internal/models"
)

func TestUploadProofOfWork(t *testing.T) {
	db, r := setupTest(t)
	clientTok := registerUser(t, r, "pfclient", "client")
	providerTok := registerUser(t, r, "pfprovider", "provider")

	var provider models.User
	db.Where("username = ?", "pfprovider").First(&provider)
	w := doJSON(t, r, "POST", "/bookings", clientTok,
		fmt.Sprintf(`{"providerID":%q,"service":"welding"}`, provider.ID))
	var booking models.Booking
	json.Unmarshal(w.Body.Bytes(), &booking)
	w = doJSON(t, r, "POST", "/escrows", clientTok,
		fmt.Sprintf(`{"bookingID":%q,"amount":9000,"currency":"PHP","holdProvider":"stripe"}`, booking.ID))
	var esc models.Escrow
	json.Unmarshal(w.Body.Bytes(), &esc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("files", "after.jpg")
	fw.Write([]byte("jpeg-bytes"))
	mw.WriteField("notes", "finished welds")
	mw.Close()

	w = httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/escrows/"+esc.ID+"/proof-of-work", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+providerTok)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("proof status %d: %s", w.Code, w.Body.String())
	}
	var got models.Escrow
	json.Unmarshal(w.Body.Bytes(), &got)
	if len(got.ProofOfWork) == 0 || got.ProofNotes != "finished welds" {
		t.Fatalf("proof not stored: %s / %q", got.ProofOfWork, got.ProofNotes)
	}

	// клиент загружать подтверждение не может
	var buf2 bytes.Buffer
	mw2 := multipart.NewWriter(&buf2)
	fw2, _ := mw2.CreateFormFile("files", "fake.jpg")
	fw2.Write([]byte("x"))
	mw2.Close()
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/escrows/"+esc.ID+"/proof-of-work", &buf2)
	req.Header.Set("Content-Type", mw2.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+clientTok)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("client proof status %d", w.Code)
	}
}
