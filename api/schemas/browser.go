package schemas

// WaitStrategy selects how long Navigate blocks after issuing the request.
type WaitStrategy string

const (
	WaitDOMContentLoaded WaitStrategy = "domcontentloaded" // Return once the document is parsed.
	WaitLoad             WaitStrategy = "load"             // Return after the load event.
	WaitNetworkIdle      WaitStrategy = "networkidle"      // Return after network activity settles.
)

// InteractiveElement is one clickable candidate extracted from the page
// (anchors, buttons and role=button elements).
type InteractiveElement struct {
	Tag      string `json:"tag"`
	Href     string `json:"href,omitempty"`
	ID       string `json:"id,omitempty"`
	Class    string `json:"class,omitempty"`
	Text     string `json:"text,omitempty"`
	Selector string `json:"selector,omitempty"` // Best-effort unique CSS selector.
}

// FormField is one input element on the page.
type FormField struct {
	Tag          string `json:"tag"`
	Type         string `json:"type,omitempty"`
	Name         string `json:"name,omitempty"`
	ID           string `json:"id,omitempty"`
	Placeholder  string `json:"placeholder,omitempty"`
	Autocomplete string `json:"autocomplete,omitempty"`
	Label        string `json:"label,omitempty"`
	Visible      bool   `json:"visible"`
	Selector     string `json:"selector,omitempty"`
}

// PageSummary is the condensed structure of a page handed to the classifier
// when judging whether a target page was reached.
type PageSummary struct {
	URL      string               `json:"url"`
	Title    string               `json:"title,omitempty"`
	Headings []string             `json:"headings,omitempty"`
	Forms    int                  `json:"forms"`
	Inputs   []FormField          `json:"inputs,omitempty"`
	Buttons  []InteractiveElement `json:"buttons,omitempty"`
	Links    []InteractiveElement `json:"links,omitempty"`
	// Text is a bounded excerpt of the visible body text.
	Text string `json:"text,omitempty"`
}
