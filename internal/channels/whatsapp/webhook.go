package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/mira/pkg/models"
)

const signatureHeader = "X-Hub-Signature-256"

// WebhookPayload is the Cloud API notification envelope.
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value ChangeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ChangeValue carries the messages of one change notification.
type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Messages []struct {
		From      string `json:"from"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
}

// ServeHTTP handles the subscription handshake (GET) and notifications (POST).
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleVerify(w, r)
	case http.MethodPost:
		a.handleNotification(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *Adapter) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("hub.verify_token")
	if q.Get("hub.mode") != "subscribe" || a.cfg.VerifyToken == "" ||
		!hmac.Equal([]byte(token), []byte(a.cfg.VerifyToken)) {
		a.logger.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

func (a *Adapter) handleNotification(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, a.cfg.MaxBodyBytes+1))
	if err != nil || int64(len(body)) > a.cfg.MaxBodyBytes {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if a.cfg.AppSecret != "" && !a.verifySignature(r.Header.Get(signatureHeader), body) {
		a.logger.Warn("invalid webhook signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		a.logger.Warn("failed to parse webhook payload", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	// Acknowledge before processing; the platform retries on slow responses.
	w.WriteHeader(http.StatusOK)

	if payload.Object != "whatsapp_business_account" {
		return
	}
	for _, msg := range ParseInbound(payload, time.Now()) {
		a.enqueue(msg)
	}
}

// verifySignature checks "sha256=<hex hmac of body>".
func (a *Adapter) verifySignature(header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok || sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.AppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected))
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ParseInbound extracts the text messages of a notification. Non-text
// messages and status updates are skipped.
func ParseInbound(payload WebhookPayload, now time.Time) []models.Inbound {
	var out []models.Inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, m := range change.Value.Messages {
				text := strings.TrimSpace(m.Text.Body)
				if m.Type != "text" || m.From == "" || text == "" {
					continue
				}
				received := now
				if sec, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
					received = time.Unix(sec, 0).UTC()
				}
				out = append(out, models.Inbound{
					UserID:     models.UserID(models.ChannelWhatsApp, m.From),
					Channel:    models.ChannelWhatsApp,
					ExternalID: m.ID,
					Text:       text,
					ReceivedAt: received,
				})
			}
		}
	}
	return out
}
