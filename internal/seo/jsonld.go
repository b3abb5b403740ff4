package seo

const schemaContext = "https://schema.org"

func Organization(name, siteURL, logoURL, email string) map[string]any {
	m := map[string]any{
		"@context": schemaContext,
		"@type":    "Organization",
		"name":     name,
	}
	if siteURL != "" {
		m["url"] = siteURL
	}
	if logoURL != "" {
		m["logo"] = logoURL
	}
	if email != "" {
		m["contactPoint"] = map[string]any{
			"@type":       "ContactPoint",
			"contactType": "customer support",
			"email":       email,
		}
	}
	return m
}

// AppRating carries the store figures shown as aggregateRating.
type AppRating struct {
	Value float64
	Count int
}

// MobileApplication describes the Android app. The rating is omitted when
// there are no reviews.
func MobileApplication(name, storeURL string, rating AppRating) map[string]any {
	m := map[string]any{
		"@context":            schemaContext,
		"@type":               "MobileApplication",
		"name":                name,
		"operatingSystem":     "ANDROID",
		"applicationCategory": "SocialNetworkingApplication",
		"offers": map[string]any{
			"@type":         "Offer",
			"price":         "0",
			"priceCurrency": "EUR",
		},
	}
	if storeURL != "" {
		m["downloadUrl"] = storeURL
	}
	if rating.Count > 0 {
		m["aggregateRating"] = map[string]any{
			"@type":       "AggregateRating",
			"ratingValue": rating.Value,
			"ratingCount": rating.Count,
		}
	}
	return m
}

type Question struct {
	Question string
	Answer   string
}

func FAQPage(questions []Question) map[string]any {
	entities := make([]map[string]any, 0, len(questions))
	for _, q := range questions {
		entities = append(entities, map[string]any{
			"@type": "Question",
			"name":  q.Question,
			"acceptedAnswer": map[string]any{
				"@type": "Answer",
				"text":  q.Answer,
			},
		})
	}
	return map[string]any{
		"@context":   schemaContext,
		"@type":      "FAQPage",
		"mainEntity": entities,
	}
}
