package diff

import (
	"sort"

	"github.com/listing-sync/backend/internal/listing"
)

// Compare builds the Diff that turns prev into next. Attributes that
// disappear are erased; images and units are matched by identifier.
// A zero prev yields a diff that creates everything in next.
func Compare(prev, next listing.Property) (*Diff, error) {
	d := New(next.Identifier)

	before := prev.Attributes()
	after := next.Attributes()
	for _, attr := range listing.Attributes() {
		oldV, hadOld := before[attr]
		newV, hasNew := after[attr]
		switch {
		case hasNew && (!hadOld || oldV != newV):
			if err := d.Set(attr, newV); err != nil {
				return nil, err
			}
		case hadOld && !hasNew:
			if err := d.Erase(attr); err != nil {
				return nil, err
			}
		}
	}

	oldImages := listing.ImageByID(prev.Images)
	for _, img := range next.Images {
		old, ok := oldImages[img.Identifier]
		switch {
		case !ok:
			d.AddImage(img)
		case old != img:
			d.ChangeImage(img)
		}
	}
	newImages := listing.ImageByID(next.Images)
	for _, id := range sortedMissing(oldImages, newImages) {
		d.DeleteImage(id)
	}

	oldUnits := listing.UnitByID(prev.Units)
	for _, u := range next.Units {
		old, ok := oldUnits[u.Identifier]
		switch {
		case !ok:
			d.AddUnit(u)
		case !old.Equal(u):
			d.ChangeUnit(u)
		}
	}
	newUnits := listing.UnitByID(next.Units)
	for _, id := range sortedMissing(oldUnits, newUnits) {
		d.DeleteUnit(id)
	}

	return d, nil
}

// sortedMissing returns the keys of old that are absent from current, sorted.
func sortedMissing[T any](old, current map[string]T) []string {
	var ids []string
	for id := range old {
		if _, ok := current[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
