package webhooks

import (
	"encoding/json"
	"fmt"

	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
)

// Shipping carrier event types
const (
	EventShipmentInTransit = "shipment.in_transit"
	EventShipmentDelivered = "shipment.delivered"
	EventShipmentException = "shipment.exception"
)

// CarrierSignatureHeader carries the carrier's hex HMAC signature
const CarrierSignatureHeader = "X-Carrier-Signature"

type shipmentData struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	Detail         string `json:"detail"`
}

// CarrierSource turns shipment tracking events into fulfillment transitions
type CarrierSource struct {
	hmacSource
}

var _ webhook.Source = (*CarrierSource)(nil)

// NewCarrierSource creates a carrier source registered under name
func NewCarrierSource(name, secret string) *CarrierSource {
	return &CarrierSource{hmacSource{
		name:   name,
		kind:   webhook.SourceKindShippingCarrier,
		header: CarrierSignatureHeader,
		secret: []byte(secret),
	}}
}

// ToDomainEvent maps in-transit to shipped and delivered to delivered.
// Exceptions become timeline notes.
func (s *CarrierSource) ToDomainEvent(evt *webhook.Event) (*webhook.DomainEvent, error) {
	env, err := decodeEnvelope(evt.Data)
	if err != nil {
		return nil, err
	}

	var target order.Status
	switch env.Type {
	case EventShipmentInTransit:
		target = order.StatusShipped
	case EventShipmentDelivered:
		target = order.StatusDelivered
	case EventShipmentException:
	default:
		return &webhook.DomainEvent{Kind: webhook.KindIgnored}, nil
	}

	orderID, err := env.orderID()
	if err != nil {
		return nil, err
	}
	var data shipmentData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, shared.NewValidationError("invalid shipment data: %v", err)
		}
	}
	carrier := data.Carrier
	if carrier == "" {
		carrier = s.name
	}

	de := &webhook.DomainEvent{
		OrderID: orderID,
		Actor:   "carrier:" + carrier,
		Note:    shipmentNote(env.Type, carrier, data),
	}
	if target == "" {
		de.Kind = webhook.KindOrderNote
		return de, nil
	}
	de.Kind = webhook.KindOrderStatus
	de.OrderStatus = target
	return de, nil
}

func shipmentNote(eventType, carrier string, data shipmentData) string {
	var note string
	switch eventType {
	case EventShipmentInTransit:
		note = "shipped via " + carrier
	case EventShipmentDelivered:
		note = "delivered by " + carrier
	default:
		note = "shipment exception reported by " + carrier
	}
	if data.TrackingNumber != "" {
		note = fmt.Sprintf("%s (tracking %s)", note, data.TrackingNumber)
	}
	if data.Detail != "" {
		note += ": " + data.Detail
	}
	return note
}
