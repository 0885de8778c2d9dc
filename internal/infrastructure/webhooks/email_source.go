package webhooks

import (
	"encoding/json"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
)

// Email provider event types
const (
	EventEmailDelivered  = "email.delivered"
	EventEmailBounced    = "email.bounced"
	EventEmailComplained = "email.complained"
)

// EmailSignatureHeader carries the email provider's hex HMAC signature
const EmailSignatureHeader = "X-Email-Signature"

var emailNotes = map[string]string{
	EventEmailDelivered:  "email delivered",
	EventEmailBounced:    "email bounced",
	EventEmailComplained: "recipient marked email as spam",
}

type emailData struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	MessageID string `json:"message_id"`
}

// EmailSource records email delivery events on the order timeline. It never
// changes order status.
type EmailSource struct {
	hmacSource
}

var _ webhook.Source = (*EmailSource)(nil)

// NewEmailSource creates an email provider source registered under name
func NewEmailSource(name, secret string) *EmailSource {
	return &EmailSource{hmacSource{
		name:   name,
		kind:   webhook.SourceKindEmailProvider,
		header: EmailSignatureHeader,
		secret: []byte(secret),
	}}
}

// ToDomainEvent maps delivery, bounce and complaint events to timeline notes
func (s *EmailSource) ToDomainEvent(evt *webhook.Event) (*webhook.DomainEvent, error) {
	env, err := decodeEnvelope(evt.Data)
	if err != nil {
		return nil, err
	}
	note, ok := emailNotes[env.Type]
	if !ok {
		return &webhook.DomainEvent{Kind: webhook.KindIgnored}, nil
	}
	orderID, err := env.orderID()
	if err != nil {
		return nil, err
	}

	var data emailData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, shared.NewValidationError("invalid email data: %v", err)
		}
	}
	if data.Subject != "" {
		note = data.Subject + ": " + note
	}
	if data.Recipient != "" {
		note += " (" + data.Recipient + ")"
	}

	return &webhook.DomainEvent{
		Kind:    webhook.KindOrderNote,
		OrderID: orderID,
		Actor:   "email:" + s.name,
		Note:    note,
	}, nil
}
