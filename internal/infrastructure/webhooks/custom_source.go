package webhooks

import (
	"encoding/json"
	"strings"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
)

// EventOrderNote appends a note to an order's timeline
const EventOrderNote = "order.note"

// CustomSource accepts {id, type, order_id, data} envelopes from an integration
// configured by name, header and secret
type CustomSource struct {
	hmacSource
}

var _ webhook.Source = (*CustomSource)(nil)

// NewCustomSource creates a custom source. An empty header falls back to
// DefaultCustomHeader.
func NewCustomSource(name, header, secret string) *CustomSource {
	if header == "" {
		header = DefaultCustomHeader
	}
	return &CustomSource{hmacSource{
		name:   name,
		kind:   webhook.SourceKindCustom,
		header: header,
		secret: []byte(secret),
	}}
}

// ToDomainEvent handles order.note; every other type is acknowledged
func (s *CustomSource) ToDomainEvent(evt *webhook.Event) (*webhook.DomainEvent, error) {
	env, err := decodeEnvelope(evt.Data)
	if err != nil {
		return nil, err
	}
	if env.Type != EventOrderNote {
		return &webhook.DomainEvent{Kind: webhook.KindIgnored}, nil
	}
	orderID, err := env.orderID()
	if err != nil {
		return nil, err
	}

	var data struct {
		Note   string `json:"note"`
		Author string `json:"author"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, shared.NewValidationError("invalid note data: %v", err)
		}
	}
	if strings.TrimSpace(data.Note) == "" {
		return nil, shared.NewValidationError("order.note event %s has an empty note", env.ID)
	}
	actor := "webhook:" + s.name
	if data.Author != "" {
		actor += ":" + data.Author
	}

	return &webhook.DomainEvent{
		Kind:    webhook.KindOrderNote,
		OrderID: orderID,
		Actor:   actor,
		Note:    data.Note,
	}, nil
}
