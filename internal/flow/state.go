// internal/flow/state.go
package flow

import "github.com/xkilldash9x/waypoint/internal/navigation"

// State is one step of the navigation flow.
type State int

const (
	StateStart State = iota
	StateDiscoverURL
	StateLocateLoginControl
	StateNavigateTowardLogin
	StateVerifyLoginPageReached
	StatePerformLogin
	StateLocateChangeEmailControl
	StateNavigateTowardChangeEmail
	StateVerifyChangeEmailReached
	StateEnd
)

var stateNames = [...]string{
	StateStart:                     "Start",
	StateDiscoverURL:               "DiscoverURL",
	StateLocateLoginControl:        "LocateLoginControl",
	StateNavigateTowardLogin:       "NavigateTowardLogin",
	StateVerifyLoginPageReached:    "VerifyLoginPageReached",
	StatePerformLogin:              "PerformLogin",
	StateLocateChangeEmailControl:  "LocateChangeEmailControl",
	StateNavigateTowardChangeEmail: "NavigateTowardChangeEmail",
	StateVerifyChangeEmailReached:  "VerifyChangeEmailReached",
	StateEnd:                       "End",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Status is the observable outcome of a run.
type Status string

const (
	StatusSearching Status = "searching"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// RunState is the record threaded through every step. Only the Machine
// writes to it, and only through Apply.
type RunState struct {
	TargetName string `json:"target_name" yaml:"target_name"`
	InitialURL string `json:"initial_url,omitempty" yaml:"initial_url,omitempty"`
	CurrentURL string `json:"current_url" yaml:"current_url"`
	// URLHistory holds the location before each navigation attempt.
	URLHistory []string `json:"url_history" yaml:"url_history"`

	NavigationMethod navigation.Method `json:"navigation_method,omitempty" yaml:"navigation_method,omitempty"`
	PendingTarget    string            `json:"pending_target,omitempty" yaml:"pending_target,omitempty"`
	PendingHref      string            `json:"pending_href,omitempty" yaml:"pending_href,omitempty"`
	// PendingIsText marks PendingTarget as link text rather than a CSS selector.
	PendingIsText bool `json:"pending_is_text,omitempty" yaml:"pending_is_text,omitempty"`
	// NextActionHint is the classifier's suggestion for the next change-email control.
	NextActionHint string `json:"next_action_hint,omitempty" yaml:"next_action_hint,omitempty"`

	LoginPageReached          bool `json:"login_page_reached" yaml:"login_page_reached"`
	ChangeEmailSectionReached bool `json:"change_email_section_reached" yaml:"change_email_section_reached"`

	UsernameSelector string `json:"username_selector,omitempty" yaml:"username_selector,omitempty"`
	PasswordSelector string `json:"password_selector,omitempty" yaml:"password_selector,omitempty"`
	SubmitSelector   string `json:"submit_selector,omitempty" yaml:"submit_selector,omitempty"`

	LoginSucceeded *bool `json:"login_succeeded,omitempty" yaml:"login_succeeded,omitempty"`

	// RetryCount counts verification cycles of the current phase.
	RetryCount int `json:"retry_count" yaml:"retry_count"`
	// LoginPageAttempts keeps the login phase's count once the change-email phase starts.
	LoginPageAttempts int `json:"login_page_attempts" yaml:"login_page_attempts"`

	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Status    Status `json:"status" yaml:"status"`
}

// Update is the partial result of one step. Nil fields are left alone;
// AppendHistory is appended, never assigned.
type Update struct {
	CurrentURL                *string
	AppendHistory             []string
	NavigationMethod          *navigation.Method
	PendingTarget             *string
	PendingHref               *string
	PendingIsText             *bool
	NextActionHint            *string
	LoginPageReached          *bool
	ChangeEmailSectionReached *bool
	UsernameSelector          *string
	PasswordSelector          *string
	SubmitSelector            *string
	LoginSucceeded            *bool
	RetryCount                *int
	LoginPageAttempts         *int
	LastError                 *string
	Status                    *Status
}

// Apply merges u into s field by field.
func (s *RunState) Apply(u Update) {
	setIf(&s.CurrentURL, u.CurrentURL)
	s.URLHistory = append(s.URLHistory, u.AppendHistory...)
	setIf(&s.NavigationMethod, u.NavigationMethod)
	setIf(&s.PendingTarget, u.PendingTarget)
	setIf(&s.PendingHref, u.PendingHref)
	setIf(&s.PendingIsText, u.PendingIsText)
	setIf(&s.NextActionHint, u.NextActionHint)
	setIf(&s.LoginPageReached, u.LoginPageReached)
	setIf(&s.ChangeEmailSectionReached, u.ChangeEmailSectionReached)
	setIf(&s.UsernameSelector, u.UsernameSelector)
	setIf(&s.PasswordSelector, u.PasswordSelector)
	setIf(&s.SubmitSelector, u.SubmitSelector)
	if u.LoginSucceeded != nil {
		v := *u.LoginSucceeded
		s.LoginSucceeded = &v
	}
	setIf(&s.RetryCount, u.RetryCount)
	setIf(&s.LoginPageAttempts, u.LoginPageAttempts)
	setIf(&s.LastError, u.LastError)
	setIf(&s.Status, u.Status)
}

// Clone returns a copy that shares no memory with s.
func (s RunState) Clone() RunState {
	c := s
	c.URLHistory = append([]string(nil), s.URLHistory...)
	if s.LoginSucceeded != nil {
		v := *s.LoginSucceeded
		c.LoginSucceeded = &v
	}
	return c
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func ptr[T any](v T) *T { return &v }
