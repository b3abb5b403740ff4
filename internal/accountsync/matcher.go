package accountsync

import (
	"net/http"
	"strings"

	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
)

var existingCodes = map[string]struct{}{
	"USER_ALREADY_EXISTS":  {},
	"EMAIL_ALREADY_EXISTS": {},
	"ALREADY_EXISTS":       {},
}

// Matcher recognises "already registered" rejections from the signup
// endpoint. Checks run in order: 409, structured code on a 4xx, then a 400 whose
// message contains one of the configured phrases.
type Matcher struct {
	phrases []string
}

func NewMatcher(phrases []string) Matcher {
	m := Matcher{}
	for _, phrase := range phrases {
		if phrase = strings.ToLower(strings.TrimSpace(phrase)); phrase != "" {
			m.phrases = append(m.phrases, phrase)
		}
	}
	return m
}

func (m Matcher) AlreadyRegistered(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		if _, ok := existingCodes[strings.ToUpper(apperr.BackendCode(body))]; ok {
			return true
		}
	}
	if status != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(apperr.BackendMessage(body))
	if msg == "" {
		return false
	}
	for _, phrase := range m.phrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
