package handler

import "time"

// webhookResponse is the envelope returned to the payment gateway for every
// webhook delivery. Received tells the gateway whether the event was taken in
// (even if ignored or unmatched); Error is only set on rejections.
type webhookResponse struct {
	Received  bool      `json:"received"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func acknowledge(message string) webhookResponse {
	return webhookResponse{
		Received:  true,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func reject(message, reason string) webhookResponse {
	return webhookResponse{
		Received:  false,
		Message:   message,
		Error:     reason,
		Timestamp: time.Now(),
	}
}
