package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ShippingAddress is the delivery destination captured when an order is placed
type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// NewShippingAddress trims and validates the address
func NewShippingAddress(a ShippingAddress) (ShippingAddress, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.Region = strings.TrimSpace(a.Region)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.Phone = strings.TrimSpace(a.Phone)

	switch {
	case a.Name == "":
		return ShippingAddress{}, errors.New("recipient name is required")
	case a.Line1 == "":
		return ShippingAddress{}, errors.New("address line1 is required")
	case a.City == "":
		return ShippingAddress{}, errors.New("city is required")
	case a.PostalCode == "":
		return ShippingAddress{}, errors.New("postal code is required")
	case len(a.Country) != 2:
		return ShippingAddress{}, errors.New("country must be an ISO 3166-1 alpha-2 code")
	}
	return a, nil
}

// IsEmpty returns true if no address fields are set
func (a ShippingAddress) IsEmpty() bool {
	return a == ShippingAddress{}
}

// String returns a single-line representation
func (a ShippingAddress) String() string {
	parts := []string{a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, a.City)
	if a.Region != "" {
		parts = append(parts, a.Region)
	}
	parts = append(parts, a.PostalCode, a.Country)
	return strings.Join(parts, ", ")
}

// Value implements driver.Valuer, storing the address as JSON
func (a ShippingAddress) Value() (driver.Value, error) {
	if a.IsEmpty() {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (a *ShippingAddress) Scan(value any) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into ShippingAddress", value)
	}
	if len(data) == 0 || string(data) == "null" {
		*a = ShippingAddress{}
		return nil
	}
	return json.Unmarshal(data, a)
}
