package checkout_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/checkout"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	CheckoutService *checkout.Service
	Logger          *logger.Logger
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := checkout.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		http.Error(w, "internal error", status)
		return
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// PlaceBooking handles POST /api/checkout.
func (h *Handler) PlaceBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceBooking: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("PlaceBooking: event=%s quantity=%d voucher=%t", req.EventID, req.Quantity, req.VoucherCode != ""))

	resp, err := h.CheckoutService.PlaceBooking(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceBooking: %v", err))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
	h.Logger.Info("API", fmt.Sprintf("PlaceBooking: booking %s created (completed=%t)", resp.BookingID, resp.PaymentCompleted))
}

// ValidateVoucher handles POST /api/voucher/validate.
func (h *Handler) ValidateVoucher(w http.ResponseWriter, r *http.Request) {
	var req models.VoucherValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ValidateVoucher: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.CheckoutService.ValidateVoucher(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ValidateVoucher: %v", err))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetBooking handles GET /api/booking/{bookingId}; the UI polls it after the
// gateway redirect.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	booking, err := h.CheckoutService.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBooking: %v", err))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, booking)
}
