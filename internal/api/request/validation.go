package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

// versionRegex accepts the version spellings the server image understands:
// "latest", "snapshot", dotted releases like "1.21.4" (with an optional
// -rc/-pre suffix) and week snapshots like "24w14a".
var versionRegex = regexp.MustCompile(`^(latest|snapshot|\d+\.\d+(\.\d+)?(-[a-z0-9]+)?|\d{2}w\d{2}[a-z])$`)

func init() {
	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return nameRegex.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("mcversion", func(fl validator.FieldLevel) bool {
		return versionRegex.MatchString(fl.Field().String())
	})
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func RequireID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required ID")
	}
	return s, nil
}
