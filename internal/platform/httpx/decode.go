package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const defaultBodyLimit = 1 << 20

// ErrEmptyBody is returned by DecodeJSON when the request carried no body.
var ErrEmptyBody = errors.New("httpx: empty request body")

// DecodeJSON reads a bounded JSON body into dst. Unknown fields are allowed
// because browser clients send extra keys.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	body := io.LimitReader(r.Body, defaultBodyLimit)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("httpx: decode json: %w", err)
	}
	return nil
}
