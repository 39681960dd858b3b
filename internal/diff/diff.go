// Package diff records incremental property changes (scalar attributes,
// images and units) for transmission to the platform.
package diff

import (
	"fmt"
	"sort"

	"github.com/listing-sync/backend/internal/apperrors"
	"github.com/listing-sync/backend/internal/listing"
)

// ChangeSet holds the created, updated and deleted members of a
// sub-entity collection. Deleted holds identifiers.
type ChangeSet[T any] struct {
	Created []T
	Updated []T
	Deleted []string
}

// Empty reports whether the change set has no changes.
func (c ChangeSet[T]) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// ChangeSetPayload is the wire form of a ChangeSet.
type ChangeSetPayload[T any] struct {
	Created []T      `json:"created,omitempty"`
	Updated []T      `json:"updated,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
}

func (c ChangeSet[T]) payload() ChangeSetPayload[T] {
	return ChangeSetPayload[T]{Created: c.Created, Updated: c.Updated, Deleted: c.Deleted}
}

// Diff is the set of changes to send for one property. An attribute is
// either set or erased, never both; the last call wins.
type Diff struct {
	PropertyID string

	values    map[listing.Attribute]any
	erased    map[listing.Attribute]struct{}
	multiUnit bool

	Images ChangeSet[listing.Image]
	Units  ChangeSet[listing.Unit]
}

// New creates an empty Diff for a property.
func New(propertyID string) *Diff {
	return &Diff{
		PropertyID: propertyID,
		values:     make(map[listing.Attribute]any),
		erased:     make(map[listing.Attribute]struct{}),
	}
}

// Set records a new value for an attribute.
func (d *Diff) Set(attr listing.Attribute, value any) error {
	if !attr.Valid() {
		return apperrors.Newf(apperrors.CodeUnknownAttribute, "unknown property attribute %q", string(attr)).
			WithField(string(attr))
	}
	delete(d.erased, attr)
	d.values[attr] = value
	return nil
}

// Erase marks an attribute to be cleared on the platform.
func (d *Diff) Erase(attr listing.Attribute) error {
	if !attr.Valid() {
		return apperrors.Newf(apperrors.CodeUnknownAttribute, "unknown property attribute %q", string(attr)).
			WithField(string(attr))
	}
	delete(d.values, attr)
	d.erased[attr] = struct{}{}
	return nil
}

// Value returns the pending value for attr.
func (d *Diff) Value(attr listing.Attribute) (any, bool) {
	v, ok := d.values[attr]
	return v, ok
}

// Erased reports whether attr is marked for clearing.
func (d *Diff) Erased(attr listing.Attribute) bool {
	_, ok := d.erased[attr]
	return ok
}

// AddImage records a new image.
func (d *Diff) AddImage(img listing.Image) {
	d.Images.Created = append(d.Images.Created, img)
}

// ChangeImage records an updated image.
func (d *Diff) ChangeImage(img listing.Image) {
	d.Images.Updated = append(d.Images.Updated, img)
}

// DeleteImage records the removal of an image.
func (d *Diff) DeleteImage(identifier string) {
	d.Images.Deleted = append(d.Images.Deleted, identifier)
}

// AddUnit records a new unit and marks the property as multi-unit.
func (d *Diff) AddUnit(u listing.Unit) {
	d.Units.Created = append(d.Units.Created, u)
	d.multiUnit = true
}

// ChangeUnit records an updated unit.
func (d *Diff) ChangeUnit(u listing.Unit) {
	d.Units.Updated = append(d.Units.Updated, u)
}

// DeleteUnit records the removal of a unit.
func (d *Diff) DeleteUnit(identifier string) {
	d.Units.Deleted = append(d.Units.Deleted, identifier)
}

// MultiUnit reports whether a unit has been added.
func (d *Diff) MultiUnit() bool {
	return d.multiUnit
}

// Empty reports whether the diff carries no change at all.
func (d *Diff) Empty() bool {
	return len(d.values) == 0 && len(d.erased) == 0 && d.Images.Empty() && d.Units.Empty()
}

// Validate checks the property identifier and every created or updated
// image and unit. It stops at the first invalid sub-entity.
func (d *Diff) Validate() error {
	if d.PropertyID == "" {
		return apperrors.New(apperrors.CodeMissingIdentifier, "diff has no property identifier").
			WithField("property_identifier")
	}

	for _, group := range [][]listing.Image{d.Images.Created, d.Images.Updated} {
		for _, img := range group {
			if err := listing.ValidateImage(img); err != nil {
				return err
			}
		}
	}
	for _, group := range [][]listing.Unit{d.Units.Created, d.Units.Updated} {
		for _, u := range group {
			if err := listing.ValidateUnit(u); err != nil {
				return err
			}
		}
	}

	for i, id := range d.Images.Deleted {
		if id == "" {
			return apperrors.Newf(apperrors.CodeMissingIdentifier, "deleted image %d has no identifier", i).
				WithField("images.deleted")
		}
	}
	for i, id := range d.Units.Deleted {
		if id == "" {
			return apperrors.Newf(apperrors.CodeMissingIdentifier, "deleted unit %d has no identifier", i).
				WithField("units.deleted")
		}
	}

	return nil
}

// Payload serializes the diff. Set attributes carry their value, erased
// attributes are sent as null and untouched attributes are absent. The
// images and units keys are present only when their change sets are not empty.
func (d *Diff) Payload() map[string]any {
	out := map[string]any{"identifier": d.PropertyID}

	for attr, v := range d.values {
		out[string(attr)] = v
	}
	for attr := range d.erased {
		out[string(attr)] = nil
	}
	if d.multiUnit {
		out["multi_unit"] = true
	}
	if !d.Images.Empty() {
		out["images"] = d.Images.payload()
	}
	if !d.Units.Empty() {
		out["units"] = d.Units.payload()
	}
	return out
}

// String summarizes the diff for logs.
func (d *Diff) String() string {
	keys := make([]string, 0, len(d.values)+len(d.erased))
	for attr := range d.values {
		keys = append(keys, string(attr))
	}
	for attr := range d.erased {
		keys = append(keys, "-"+string(attr))
	}
	sort.Strings(keys)
	return fmt.Sprintf("diff %s attrs=%v images=+%d~%d-%d units=+%d~%d-%d",
		d.PropertyID, keys,
		len(d.Images.Created), len(d.Images.Updated), len(d.Images.Deleted),
		len(d.Units.Created), len(d.Units.Updated), len(d.Units.Deleted))
}
