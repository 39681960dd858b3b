// Package listing contains the property content types exchanged with the
// platform and their validation rules.
package listing

import (
	"sort"

	"github.com/listing-sync/backend/internal/apperrors"
)

// Attribute names a scalar property field the platform accepts.
type Attribute string

// Property attributes
const (
	AttrName         Attribute = "name"
	AttrHeadline     Attribute = "headline"
	AttrDescription  Attribute = "description"
	AttrPropertyType Attribute = "property_type"
	AttrAddress      Attribute = "address"
	AttrCity         Attribute = "city"
	AttrPostalCode   Attribute = "postal_code"
	AttrCountryCode  Attribute = "country_code"
	AttrLatitude     Attribute = "latitude"
	AttrLongitude    Attribute = "longitude"
	AttrMaxGuests    Attribute = "max_guests"
	AttrBedrooms     Attribute = "bedrooms"
	AttrBathrooms    Attribute = "bathrooms"
	AttrCurrency     Attribute = "currency"
	AttrCheckinTime  Attribute = "checkin_time"
	AttrCheckoutTime Attribute = "checkout_time"
)

var allowedAttributes = map[Attribute]bool{
	AttrName:         true,
	AttrHeadline:     true,
	AttrDescription:  true,
	AttrPropertyType: true,
	AttrAddress:      true,
	AttrCity:         true,
	AttrPostalCode:   true,
	AttrCountryCode:  true,
	AttrLatitude:     true,
	AttrLongitude:    true,
	AttrMaxGuests:    true,
	AttrBedrooms:     true,
	AttrBathrooms:    true,
	AttrCurrency:     true,
	AttrCheckinTime:  true,
	AttrCheckoutTime: true,
}

// Valid reports whether a is in the allowed attribute set.
func (a Attribute) Valid() bool {
	return allowedAttributes[a]
}

// ParseAttribute converts a name into an Attribute, rejecting unknown names.
func ParseAttribute(name string) (Attribute, error) {
	a := Attribute(name)
	if !a.Valid() {
		return "", apperrors.Newf(apperrors.CodeUnknownAttribute, "unknown property attribute %q", name).
			WithField(name)
	}
	return a, nil
}

// Attributes returns every allowed attribute in name order.
func Attributes() []Attribute {
	attrs := make([]Attribute, 0, len(allowedAttributes))
	for a := range allowedAttributes {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i] < attrs[j] })
	return attrs
}

// Image is a property or unit photo.
type Image struct {
	Identifier string `json:"identifier" validate:"required"`
	URL        string `json:"url" validate:"required,url"`
	Caption    string `json:"caption,omitempty" validate:"max=255"`
	Position   int    `json:"position" validate:"gte=0"`
}

// Unit is a separately bookable sub-unit of a multi-unit property.
type Unit struct {
	Identifier string  `json:"identifier" validate:"required"`
	Name       string  `json:"name,omitempty"`
	MaxGuests  int     `json:"max_guests" validate:"gte=0"`
	Bedrooms   int     `json:"bedrooms" validate:"gte=0"`
	Bathrooms  float64 `json:"bathrooms" validate:"gte=0"`
	Images     []Image `json:"images,omitempty" validate:"dive"`
}

// Property is the full content of a listing as reported by a supplier.
type Property struct {
	Identifier   string   `json:"identifier" validate:"required"`
	Name         string   `json:"name,omitempty"`
	Headline     string   `json:"headline,omitempty"`
	Description  string   `json:"description,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	Address      string   `json:"address,omitempty"`
	City         string   `json:"city,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	CountryCode  string   `json:"country_code,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	Latitude     *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	MaxGuests    int      `json:"max_guests,omitempty" validate:"gte=0"`
	Bedrooms     int      `json:"bedrooms,omitempty" validate:"gte=0"`
	Bathrooms    float64  `json:"bathrooms,omitempty" validate:"gte=0"`
	Currency     string   `json:"currency,omitempty" validate:"omitempty,iso4217"`
	CheckinTime  string   `json:"checkin_time,omitempty"`
	CheckoutTime string   `json:"checkout_time,omitempty"`
	Images       []Image  `json:"images,omitempty" validate:"dive"`
	Units        []Unit   `json:"units,omitempty" validate:"dive"`
}

// Attributes returns the property's non-empty scalar values keyed by attribute.
func (p Property) Attributes() map[Attribute]any {
	out := make(map[Attribute]any)
	putString := func(a Attribute, v string) {
		if v != "" {
			out[a] = v
		}
	}
	putString(AttrName, p.Name)
	putString(AttrHeadline, p.Headline)
	putString(AttrDescription, p.Description)
	putString(AttrPropertyType, p.PropertyType)
	putString(AttrAddress, p.Address)
	putString(AttrCity, p.City)
	putString(AttrPostalCode, p.PostalCode)
	putString(AttrCountryCode, p.CountryCode)
	putString(AttrCurrency, p.Currency)
	putString(AttrCheckinTime, p.CheckinTime)
	putString(AttrCheckoutTime, p.CheckoutTime)

	if p.Latitude != nil {
		out[AttrLatitude] = *p.Latitude
	}
	if p.Longitude != nil {
		out[AttrLongitude] = *p.Longitude
	}
	if p.MaxGuests != 0 {
		out[AttrMaxGuests] = p.MaxGuests
	}
	if p.Bedrooms != 0 {
		out[AttrBedrooms] = p.Bedrooms
	}
	if p.Bathrooms != 0 {
		out[AttrBathrooms] = p.Bathrooms
	}
	return out
}

// ImageByID indexes images by identifier.
func ImageByID(images []Image) map[string]Image {
	out := make(map[string]Image, len(images))
	for _, img := range images {
		out[img.Identifier] = img
	}
	return out
}

// UnitByID indexes units by identifier.
func UnitByID(units []Unit) map[string]Unit {
	out := make(map[string]Unit, len(units))
	for _, u := range units {
		out[u.Identifier] = u
	}
	return out
}

// Equal reports whether two units carry the same content.
func (u Unit) Equal(o Unit) bool {
	if u.Identifier != o.Identifier || u.Name != o.Name || u.MaxGuests != o.MaxGuests ||
		u.Bedrooms != o.Bedrooms || u.Bathrooms != o.Bathrooms || len(u.Images) != len(o.Images) {
		return false
	}
	for i := range u.Images {
		if u.Images[i] != o.Images[i] {
			return false
		}
	}
	return true
}
