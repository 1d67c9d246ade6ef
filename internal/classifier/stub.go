// internal/classifier/stub.go
package classifier

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

// StubClassifier answers every request with keyword heuristics over the raw
// page material. It needs no network and is deterministic, which makes it the
// classifier for offline runs and tests.
type StubClassifier struct {
	logger *zap.Logger
}

var _ schemas.Classifier = (*StubClassifier)(nil)

func NewStubClassifier(logger *zap.Logger) *StubClassifier {
	return &StubClassifier{logger: logger.Named("classifier.stub")}
}

var (
	loginKeywords       = []string{"log in", "login", "sign in", "signin", "sign-in", "log-in"}
	changeEmailKeywords = []string{"change email", "email", "account settings", "settings", "account", "profile"}
	changeEmailPhrase   = regexp.MustCompile(`(?i)\b(change|update|edit|new)\b[^.\n]{0,40}\be-?mail\b|\be-?mail\b[^.\n]{0,20}\b(address|settings)\b`)
	usernameHint        = regexp.MustCompile(`(?i)user|email|login|account|identifier`)
	nonAlnum            = regexp.MustCompile(`[^a-z0-9]+`)
)

// Classify implements schemas.Classifier.
func (s *StubClassifier) Classify(ctx context.Context, req schemas.ClassificationRequest, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	switch dst := out.(type) {
	case *schemas.URLSelection:
		*dst, err = s.pickHomepage(req.Subject, req.Candidates)
	case *schemas.CSSSelector:
		keywords := loginKeywords
		if req.Intent == schemas.IntentChangeEmailControl {
			keywords = changeEmailKeywords
			if req.Subject != "" {
				keywords = append([]string{strings.ToLower(req.Subject)}, keywords...)
			}
		}
		*dst, err = pickElement(req.Elements, keywords)
	case *schemas.PageAnalysis:
		*dst = analyzeLoginPage(req.Page)
	case *schemas.ChangeEmailSectionAnalysis:
		*dst = analyzeChangeEmailSection(req.Page)
	default:
		return fmt.Errorf("stub classifier cannot produce %T", out)
	}
	if err != nil {
		return err
	}
	s.logger.Debug("Stub classification.", zap.String("shape", string(req.Shape)), zap.Any("answer", out))
	return nil
}

// pickHomepage prefers the candidate whose registrable domain contains the
// target name, falling back to the top result.
func (s *StubClassifier) pickHomepage(target string, candidates []string) (schemas.URLSelection, error) {
	if len(candidates) == 0 {
		return schemas.URLSelection{}, fmt.Errorf("no homepage candidates to choose from")
	}
	name := nonAlnum.ReplaceAllString(strings.ToLower(target), "")
	for _, c := range candidates {
		u, err := url.Parse(c)
		if err != nil || u.Hostname() == "" {
			continue
		}
		domain, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
		if err != nil {
			continue
		}
		label := nonAlnum.ReplaceAllString(strings.SplitN(domain, ".", 2)[0], "")
		if name != "" && (strings.Contains(label, name) || strings.Contains(name, label)) {
			return schemas.URLSelection{URL: homepageOf(u)}, nil
		}
	}
	return schemas.URLSelection{URL: candidates[0]}, nil
}

func homepageOf(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
}

// pickElement returns the first element matching the earliest keyword.
func pickElement(elements []schemas.InteractiveElement, keywords []string) (schemas.CSSSelector, error) {
	for _, kw := range keywords {
		for _, el := range elements {
			if strings.Contains(elementHaystack(el), kw) {
				return schemas.CSSSelector{Selector: selectorOf(el), Href: el.Href, Text: strings.TrimSpace(el.Text)}, nil
			}
		}
	}
	return schemas.CSSSelector{}, fmt.Errorf("no element matches any of %v", keywords)
}

func elementHaystack(el schemas.InteractiveElement) string {
	return strings.ToLower(strings.Join([]string{el.Text, el.ID, el.Class, el.Href}, " "))
}

func selectorOf(el schemas.InteractiveElement) string {
	if el.Selector != "" {
		return el.Selector
	}
	if el.ID != "" {
		return "#" + el.ID
	}
	if fields := strings.Fields(el.Class); len(fields) > 0 {
		return el.Tag + "." + fields[0]
	}
	return el.Tag
}

// analyzeLoginPage treats a visible password input as the login form.
func analyzeLoginPage(page *schemas.PageSummary) schemas.PageAnalysis {
	var res schemas.PageAnalysis
	if page == nil {
		return res
	}

	var firstText string
	for _, in := range page.Inputs {
		if !in.Visible {
			continue
		}
		t := strings.ToLower(in.Type)
		switch {
		case t == "password" && res.PasswordSelector == "":
			res.PasswordSelector = in.Selector
		case t == "email" && res.UsernameSelector == "":
			res.UsernameSelector = in.Selector
		case (t == "text" || t == "") && in.Tag == "input":
			if firstText == "" {
				firstText = in.Selector
			}
			if res.UsernameSelector == "" && usernameHint.MatchString(in.Name+" "+in.ID+" "+in.Placeholder+" "+in.Autocomplete+" "+in.Label) {
				res.UsernameSelector = in.Selector
			}
		case t == "submit" && res.SubmitSelector == "":
			res.SubmitSelector = in.Selector
		}
	}
	if res.UsernameSelector == "" {
		res.UsernameSelector = firstText
	}
	if res.SubmitSelector == "" {
		if el, err := pickElement(page.Buttons, append([]string{"submit"}, loginKeywords...)); err == nil {
			res.SubmitSelector = el.Selector
		} else if len(page.Buttons) > 0 {
			res.SubmitSelector = selectorOf(page.Buttons[0])
		}
	}
	res.IsPageReached = res.PasswordSelector != ""
	return res
}

// analyzeChangeEmailSection looks for an email input next to change-email wording.
func analyzeChangeEmailSection(page *schemas.PageSummary) schemas.ChangeEmailSectionAnalysis {
	var res schemas.ChangeEmailSectionAnalysis
	if page == nil {
		return res
	}

	hasEmailInput := false
	for _, in := range page.Inputs {
		if in.Visible && (strings.EqualFold(in.Type, "email") || strings.Contains(strings.ToLower(in.Name+in.ID), "email")) {
			hasEmailInput = true
			break
		}
	}
	wording := changeEmailPhrase.MatchString(page.Title + "\n" + strings.Join(page.Headings, "\n") + "\n" + page.Text)
	res.IsPageReached = hasEmailInput && wording

	if !res.IsPageReached {
		links := append(append([]schemas.InteractiveElement{}, page.Links...), page.Buttons...)
		if el, err := pickElement(links, changeEmailKeywords); err == nil && el.Text != "" {
			res.NextActionLocation = el.Text
		}
	}
	return res
}
