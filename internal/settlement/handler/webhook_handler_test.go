package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ms-booking/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
)

type fakeVerifier struct {
	event stripe.Event
	err   error
}

func (f *fakeVerifier) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if f.err != nil {
		return stripe.Event{}, f.err
	}
	return f.event, nil
}

func setupRouter(verifier *fakeVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// The rejection paths under test never reach the finalizer.
	h := NewWebhookHandler(nil, verifier, logger.NewLogger())
	h.RegisterRoutes(r)
	return r
}

func postWebhook(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=123,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r := setupRouter(&fakeVerifier{err: errors.New("signature mismatch")})

	w := postWebhook(r, `{"id":"evt_1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "signature")
	assert.Contains(t, w.Body.String(), `"received":false`)
}

func TestWebhookIgnoresUnhandledEventTypes(t *testing.T) {
	r := setupRouter(&fakeVerifier{
		event: stripe.Event{
			ID:   "evt_1",
			Type: "payment_intent.created",
		},
	})

	w := postWebhook(r, `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Contains(t, w.Body.String(), `"received":true`)
}

func TestWebhookRejectsMalformedSessionPayload(t *testing.T) {
	r := setupRouter(&fakeVerifier{
		event: stripe.Event{
			ID:   "evt_1",
			Type: "checkout.session.completed",
			Data: &stripe.EventData{Raw: json.RawMessage(`{"id": 42`)},
		},
	})

	w := postWebhook(r, `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookHealthEndpoint(t *testing.T) {
	r := setupRouter(&fakeVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
