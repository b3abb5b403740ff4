package cms

import "html/template"

type Link struct {
	Label string `yaml:"label"`
	Link  string `yaml:"link"`
}

type Hero struct {
	Title       string `yaml:"title"`
	Subtitle    string `yaml:"subtitle"`
	Description string `yaml:"description"`
}

type Card struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
}

type QA struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

type Navbar struct {
	Brand struct {
		Name    string `yaml:"name"`
		Tagline string `yaml:"tagline"`
	} `yaml:"brand"`
	Menu struct {
		Home     string `yaml:"home"`
		Features string `yaml:"features"`
		FAQ      string `yaml:"faq"`
		Contact  string `yaml:"contact"`
	} `yaml:"menu"`
	CTA struct {
		Text string `yaml:"text"`
		Link string `yaml:"link"`
	} `yaml:"cta"`
}

type Footer struct {
	About struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
	} `yaml:"about"`
	QuickLinks struct {
		Title string `yaml:"title"`
		Items []Link `yaml:"items"`
	} `yaml:"quickLinks"`
	Contact struct {
		Title string `yaml:"title"`
		Email string `yaml:"email"`
	} `yaml:"contact"`
	Legal struct {
		Copyright   string `yaml:"copyright"`
		Privacy     string `yaml:"privacy"`
		Terms       string `yaml:"terms"`
		PrivacyLink string `yaml:"privacyLink"`
		TermsLink   string `yaml:"termsLink"`
	} `yaml:"legal"`
}

type Stat struct {
	Value  string `yaml:"value"`
	Label  string `yaml:"label"`
	Suffix string `yaml:"suffix"`
}

type Home struct {
	Hero struct {
		Hero            `yaml:",inline"`
		PrimaryButton   string `yaml:"primaryButton"`
		PrimaryLink     string `yaml:"primaryButtonLink"`
		SecondaryButton string `yaml:"secondaryButton"`
		SecondaryLink   string `yaml:"secondaryButtonLink"`
	} `yaml:"hero"`
	Download struct {
		Title         string `yaml:"title"`
		Description   string `yaml:"description"`
		AndroidButton string `yaml:"androidButton"`
	} `yaml:"download"`
	Usage struct {
		Title string `yaml:"title"`
		Items []Card `yaml:"items"`
	} `yaml:"usage"`
	Stats []Stat `yaml:"stats"`
}

type Features struct {
	Hero        Hero `yaml:"hero"`
	KeyFeatures struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Items       []Card `yaml:"items"`
	} `yaml:"keyFeatures"`
	CTA struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		ButtonText  string `yaml:"buttonText"`
	} `yaml:"cta"`
}

type FAQ struct {
	Hero      Hero `yaml:"hero"`
	Questions []QA `yaml:"questions"`
	Help      struct {
		Title         string `yaml:"title"`
		Description   string `yaml:"description"`
		ContactButton string `yaml:"contactButton"`
		ContactLink   string `yaml:"contactLink"`
	} `yaml:"help"`
}

type Field struct {
	Label       string `yaml:"label"`
	Placeholder string `yaml:"placeholder"`
}

type SelectOption struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

type Contact struct {
	Hero Hero `yaml:"hero"`
	Form struct {
		Title        string `yaml:"title"`
		Description  string `yaml:"description"`
		SubmitButton string `yaml:"submitButton"`
		Fields       struct {
			Title   Field `yaml:"title"`
			Subject struct {
				Field   `yaml:",inline"`
				Options []SelectOption `yaml:"options"`
			} `yaml:"subject"`
			Message Field `yaml:"message"`
		} `yaml:"fields"`
	} `yaml:"form"`
	Info struct {
		Title string `yaml:"title"`
		Email struct {
			Title   string `yaml:"title"`
			Address string `yaml:"address"`
		} `yaml:"email"`
	} `yaml:"info"`
}

// Legal is the shape shared by the privacy and terms documents. Section
// content is markdown.
type Legal struct {
	Hero     Hero `yaml:"hero"`
	Sections []struct {
		Title   string `yaml:"title"`
		Content string `yaml:"content"`
	} `yaml:"sections"`
}

type LegalSection struct {
	Title string
	HTML  template.HTML
}

func (s *Store) Navbar(lang string) (Navbar, error) {
	var doc Navbar
	err := s.Load(lang, "navbar", &doc)
	return doc, err
}

func (s *Store) Footer(lang string) (Footer, error) {
	var doc Footer
	err := s.Load(lang, "footer", &doc)
	return doc, err
}

func (s *Store) Home(lang string) (Home, error) {
	var doc Home
	err := s.Load(lang, "home", &doc)
	return doc, err
}

func (s *Store) Features(lang string) (Features, error) {
	var doc Features
	err := s.Load(lang, "features", &doc)
	return doc, err
}

func (s *Store) FAQ(lang string) (FAQ, error) {
	var doc FAQ
	err := s.Load(lang, "faq", &doc)
	return doc, err
}

func (s *Store) Contact(lang string) (Contact, error) {
	var doc Contact
	err := s.Load(lang, "contact", &doc)
	return doc, err
}

// Legal loads privacy or terms and renders each section's markdown.
func (s *Store) Legal(lang, name string) (Hero, []LegalSection, error) {
	if name != "privacy" && name != "terms" {
		return Hero{}, nil, ErrNotFound
	}
	var doc Legal
	if err := s.Load(lang, name, &doc); err != nil {
		return Hero{}, nil, err
	}
	sections := make([]LegalSection, 0, len(doc.Sections))
	for _, section := range doc.Sections {
		sections = append(sections, LegalSection{Title: section.Title, HTML: s.Markdown(section.Content)})
	}
	return doc.Hero, sections, nil
}
