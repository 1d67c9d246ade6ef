package schemas

import "fmt"

// OutputShape names the structured answer a classifier must produce.
type OutputShape string

const (
	ShapeURLSelection               OutputShape = "URLSelection"
	ShapeCSSSelector                OutputShape = "CSSSelector"
	ShapePageAnalysis               OutputShape = "PageAnalysis"
	ShapeChangeEmailSectionAnalysis OutputShape = "ChangeEmailSectionAnalysis"
)

// Intent tells the classifier what the caller is looking for. LLM-backed
// classifiers only need the prompt; deterministic ones key off the intent.
type Intent string

const (
	IntentHomepage           Intent = "homepage"
	IntentLoginControl       Intent = "login_control"
	IntentLoginPage          Intent = "login_page"
	IntentChangeEmailControl Intent = "change_email_control"
	IntentChangeEmailSection Intent = "change_email_section"
)

// ClassificationRequest is a single request/response judgment.
type ClassificationRequest struct {
	Shape  OutputShape `json:"shape"`
	Intent Intent      `json:"intent"`
	Prompt string      `json:"prompt"`

	// Raw material the prompt was built from.
	Subject    string               `json:"subject,omitempty"`    // Target name, or a hint for the next step.
	Page       *PageSummary         `json:"page,omitempty"`       // Structure of the current page.
	Elements   []InteractiveElement `json:"elements,omitempty"`   // Clickable candidates.
	Candidates []string             `json:"candidates,omitempty"` // Candidate URLs.
}

// FieldType is the JSON type of one output field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldBoolean FieldType = "boolean"
)

// FieldSpec describes one property of an output shape.
type FieldSpec struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
}

// Fields returns the JSON properties the shape is made of.
func (s OutputShape) Fields() []FieldSpec {
	switch s {
	case ShapeURLSelection:
		return []FieldSpec{
			{Name: "url", Type: FieldString, Description: "The most likely official homepage URL", Required: true},
		}
	case ShapeCSSSelector:
		return []FieldSpec{
			{Name: "selector", Type: FieldString, Description: "CSS selector targeting the element (id if available, otherwise class)", Required: true},
			{Name: "href", Type: FieldString, Description: "The href attribute if it exists (may be empty, '#', 'javascript:void(0)' or a URL)"},
			{Name: "text", Type: FieldString, Description: "The visible link or button text"},
		}
	case ShapePageAnalysis:
		return []FieldSpec{
			{Name: "is_page_reached", Type: FieldBoolean, Description: "Whether the page is the expected target page", Required: true},
			{Name: "username_selector", Type: FieldString, Description: "CSS selector of the username or email input"},
			{Name: "password_selector", Type: FieldString, Description: "CSS selector of the password input"},
			{Name: "submit_selector", Type: FieldString, Description: "CSS selector of the submit button"},
		}
	case ShapeChangeEmailSectionAnalysis:
		return []FieldSpec{
			{Name: "is_page_reached", Type: FieldBoolean, Description: "Whether the change email section is displayed", Required: true},
			{Name: "next_action_location", Type: FieldString, Description: "Text of the link or button to use next when not reached"},
		}
	default:
		return nil
	}
}

// URLSelection is the selected homepage among search results.
type URLSelection struct {
	URL string `json:"url"`
}

// Validate implements Validator.
func (u *URLSelection) Validate() error {
	if u.URL == "" {
		return fmt.Errorf("url selection is empty")
	}
	return nil
}

// CSSSelector identifies one interactive element.
type CSSSelector struct {
	Selector string `json:"selector"`
	Href     string `json:"href,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Validate implements Validator.
func (c *CSSSelector) Validate() error {
	if c.Selector == "" && c.Text == "" {
		return fmt.Errorf("css selector has neither selector nor text")
	}
	return nil
}

// PageAnalysis is the login-page verdict plus the form field selectors.
type PageAnalysis struct {
	IsPageReached    bool   `json:"is_page_reached"`
	UsernameSelector string `json:"username_selector"`
	PasswordSelector string `json:"password_selector"`
	SubmitSelector   string `json:"submit_selector"`
}

// ChangeEmailSectionAnalysis is the change-email verdict.
type ChangeEmailSectionAnalysis struct {
	IsPageReached      bool   `json:"is_page_reached"`
	NextActionLocation string `json:"next_action_location,omitempty"`
}

// Validator is implemented by output shapes with invariants beyond JSON typing.
type Validator interface {
	Validate() error
}
