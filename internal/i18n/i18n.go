// Package i18n resolves the active site language.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Language is a supported two-letter site language code.
type Language string

const Default Language = "en"

// Supported lists the site languages in switcher order.
var Supported = []Language{
	"en", "fr", "de", "es", "it", "pt", "nl", "pl", "ru", "sv", "da",
	"fi", "no", "cs", "hu", "ro", "el", "tr", "uk", "sk", "hr", "bg",
}

var names = map[Language]string{
	"en": "English",
	"fr": "Français",
	"de": "Deutsch",
	"es": "Español",
	"it": "Italiano",
	"pt": "Português",
	"nl": "Nederlands",
	"pl": "Polski",
	"ru": "Русский",
	"sv": "Svenska",
	"da": "Dansk",
	"fi": "Suomi",
	"no": "Norsk",
	"cs": "Čeština",
	"hu": "Magyar",
	"ro": "Română",
	"el": "Ελληνικά",
	"tr": "Türkçe",
	"uk": "Українська",
	"sk": "Slovenčina",
	"hr": "Hrvatski",
	"bg": "Български",
}

// Name returns the language's native display name.
func (l Language) Name() string {
	if name, ok := names[l]; ok {
		return name
	}
	return string(l)
}

func (l Language) String() string { return string(l) }

// Resolver picks a language from query parameter, cookie and
// Accept-Language, in that order.
type Resolver struct {
	supported map[Language]struct{}
	tags      []language.Tag
	langs     []Language
	matcher   language.Matcher
	fallback  Language
}

func NewResolver() *Resolver {
	r := &Resolver{supported: make(map[Language]struct{}, len(Supported)), fallback: Default}
	// The fallback goes first so the matcher treats it as its default.
	r.add(Default)
	for _, lang := range Supported {
		r.add(lang)
	}
	r.matcher = language.NewMatcher(r.tags)
	return r
}

func (r *Resolver) add(lang Language) {
	if _, ok := r.supported[lang]; ok {
		return
	}
	r.supported[lang] = struct{}{}
	r.tags = append(r.tags, language.Make(string(lang)))
	r.langs = append(r.langs, lang)
}

// Parse returns the supported language for raw, if any.
func (r *Resolver) Parse(raw string) (Language, bool) {
	lang := Language(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := r.supported[lang]
	return lang, ok
}

// Resolve applies the priority chain. Unsupported query or cookie values
// are ignored rather than rejected.
func (r *Resolver) Resolve(query, cookie, acceptLanguage string) Language {
	if lang, ok := r.Parse(query); ok {
		return lang
	}
	if lang, ok := r.Parse(cookie); ok {
		return lang
	}
	return r.FromAcceptLanguage(acceptLanguage)
}

// FromAcceptLanguage picks the highest-weighted supported base language.
// Regional variants match on their base; near matches such as Bokmål for
// Norwegian are accepted when the matcher is confident.
func (r *Resolver) FromAcceptLanguage(header string) Language {
	header = strings.TrimSpace(header)
	if header == "" {
		return r.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return r.fallback
	}
	for _, tag := range tags {
		base, _ := tag.Base()
		if lang, ok := r.Parse(base.String()); ok {
			return lang
		}
	}
	_, index, confidence := r.matcher.Match(tags...)
	if confidence >= language.High && index >= 0 && index < len(r.langs) {
		return r.langs[index]
	}
	return r.fallback
}
