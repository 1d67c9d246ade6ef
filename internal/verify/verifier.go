// internal/verify/verifier.go
package verify

// Signals are independent observations of the page after a login submit.
type Signals struct {
	URLChanged         bool `json:"urlChanged"`
	FormGone           bool `json:"formGone"`
	NoErrorsShown      bool `json:"noErrorsShown"`
	SuccessCuesPresent bool `json:"successCuesPresent"`
}

// Verify combines the signals into a verdict. Each sufficient condition is
// gated on the absence of visible error text; success cues only count when
// the URL or the form corroborates them.
func Verify(s Signals) bool {
	redirected := s.URLChanged && s.NoErrorsShown
	formCleared := s.FormGone && s.NoErrorsShown
	cued := s.SuccessCuesPresent && s.NoErrorsShown && (s.URLChanged || s.FormGone)
	return redirected || formCleared || cued
}
