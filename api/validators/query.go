package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// QueryString reads a trimmed query parameter, enforcing presence when
// required and an upper length bound.
func QueryString(r *http.Request, key string, required bool, maxLen int) (string, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" && required {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").WithDetails(map[string]any{"field": key})
	}
	if maxLen > 0 && len(value) > maxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter too long").WithDetails(map[string]any{"field": key, "max": maxLen})
	}
	return value, nil
}

// SanitizeString trims input and cuts it to maxLen bytes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}
