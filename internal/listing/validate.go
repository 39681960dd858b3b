package listing

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/listing-sync/backend/internal/apperrors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateImage checks an image has an identifier and a syntactically valid URL.
func ValidateImage(img Image) error {
	return check("image", img.Identifier, img)
}

// ValidateUnit checks a unit and each of its images.
func ValidateUnit(u Unit) error {
	return check("unit", u.Identifier, u)
}

// ValidateProperty checks a full property, including images and units.
func ValidateProperty(p Property) error {
	return check("property", p.Identifier, p)
}

// check runs struct validation and reports the first failure.
func check(kind, id string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Wrap(apperrors.CodeInvalidEntity, kind+" is invalid", err)
	}

	fe := verrs[0]
	if fe.Field() == "Identifier" && fe.Tag() == "required" {
		return apperrors.Newf(apperrors.CodeMissingIdentifier, "%s has no identifier", describe(kind, id)).
			WithField(fe.Namespace())
	}
	return apperrors.Newf(apperrors.CodeInvalidEntity, "%s: %s %s", describe(kind, id), fe.Namespace(), rule(fe)).
		WithField(fe.Namespace()).
		WithValue(fe.Value())
}

func describe(kind, id string) string {
	if id == "" {
		return kind
	}
	return fmt.Sprintf("%s %q", kind, id)
}

func rule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "is not a valid URL"
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "latitude", "longitude":
		return "is not a valid " + fe.Tag()
	case "iso3166_1_alpha2":
		return "is not an ISO 3166-1 alpha-2 country code"
	case "iso4217":
		return "is not an ISO 4217 currency code"
	default:
		return "failed " + fe.Tag()
	}
}
