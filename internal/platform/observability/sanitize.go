package observability

import "unicode"

const defaultStringLimit = 256

// sanitizeString drops control characters and caps the rune count so values are safe to log.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	cleaned := make([]rune, 0, min(len(value), limit))
	for _, r := range value {
		if len(cleaned) == limit {
			break
		}
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
	}
	return string(cleaned)
}

// SanitizeRoute removes control characters and enforces length constraints on routes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod removes control characters in HTTP methods.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeCardID bounds card identifiers taken from URLs before they reach logs.
func SanitizeCardID(id string) string {
	if id == "" {
		return ""
	}
	return sanitizeString(id, 64)
}
