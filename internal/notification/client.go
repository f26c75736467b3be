package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
)

// Client talks to the external Notification Service. Every call is
// best-effort: the settlement paths log failures and move on, a confirmation
// email is never allowed to block or fail a settlement.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewClient(cfg config.NotificationConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

type confirmationPayload struct {
	BookingID string `json:"booking_id"`
	Template  string `json:"template"`
}

// SendBookingConfirmation fires the confirmation request. Callers treat a
// returned error as log-only.
func (c *Client) SendBookingConfirmation(ctx context.Context, bookingID, template string) error {
	body, err := json.Marshal(confirmationPayload{BookingID: bookingID, Template: template})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/notifications/booking-confirmation", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}
	c.log.Info("NOTIFY", fmt.Sprintf("Booking confirmation dispatched for %s", bookingID))
	return nil
}
