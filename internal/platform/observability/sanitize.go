package observability

import "unicode"

// sanitizeString drops control characters and caps length so request data
// cannot forge log lines.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return string(out)
}

func sanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}
