package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

// fakeDriver is an in-memory browser. Pages are keyed by URL; clicks move to
// whatever clickTo maps the selector or text to.
type fakeDriver struct {
	url         string
	elements    string
	signals     string
	navigateErr map[string]error
	clickErr    error
	clickTo     map[string]string

	navigations []string
	clicks      []string
	fills       map[string]string
	evalErr     error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		elements:    `[{"tag":"a","href":"/login","text":"Log in","selector":"#login"}]`,
		signals:     `{"urlChanged":true,"formGone":true,"noErrorsShown":true,"successCuesPresent":false}`,
		navigateErr: map[string]error{},
		clickTo:     map[string]string{},
		fills:       map[string]string{},
	}
}

var _ schemas.BrowserDriver = (*fakeDriver)(nil)

func (f *fakeDriver) Navigate(ctx context.Context, url string, _ schemas.WaitStrategy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.navigations = append(f.navigations, url)
	if err := f.navigateErr[url]; err != nil {
		return err
	}
	f.url = url
	return nil
}

func (f *fakeDriver) CurrentURL(context.Context) (string, error) { return f.url, nil }

func (f *fakeDriver) EvaluateScript(_ context.Context, script string, _ ...interface{}) (json.RawMessage, error) {
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	switch script {
	case interactiveScript:
		return json.RawMessage(f.elements), nil
	case summaryScript:
		return json.RawMessage(fmt.Sprintf(`{"url": %q, "forms": 1}`, f.url)), nil
	case submitScript:
		return json.RawMessage(`true`), nil
	default:
		return json.RawMessage(f.signals), nil
	}
}

func (f *fakeDriver) click(target string) error {
	f.clicks = append(f.clicks, target)
	if f.clickErr != nil {
		return f.clickErr
	}
	if dest, ok := f.clickTo[target]; ok {
		f.url = dest
	}
	return nil
}

func (f *fakeDriver) Click(_ context.Context, selector string, _ time.Duration) error {
	return f.click(selector)
}

func (f *fakeDriver) ClickByText(_ context.Context, text string, _ time.Duration) error {
	return f.click(text)
}

func (f *fakeDriver) Fill(_ context.Context, selector, value string, _ time.Duration) error {
	f.fills[selector] = value
	return nil
}

func (f *fakeDriver) WaitForLoad(context.Context, time.Duration) error { return nil }
func (f *fakeDriver) WaitIdle(context.Context, time.Duration) error    { return nil }
func (f *fakeDriver) Close(context.Context) error                      { return nil }

// scriptedClassifier answers from canned values. n is the 1-based call
// count for the shape being answered.
type scriptedClassifier struct {
	homepage     string
	loginControl schemas.CSSSelector
	emailControl schemas.CSSSelector
	loginPage    func(n int) schemas.PageAnalysis
	emailSection func(n int) schemas.ChangeEmailSectionAnalysis
	failShape    schemas.OutputShape

	requests []schemas.ClassificationRequest
	counts   map[schemas.OutputShape]int
}

func (c *scriptedClassifier) Classify(_ context.Context, req schemas.ClassificationRequest, out interface{}) error {
	if c.counts == nil {
		c.counts = map[schemas.OutputShape]int{}
	}
	c.requests = append(c.requests, req)
	c.counts[req.Shape]++
	n := c.counts[req.Shape]
	if req.Shape == c.failShape {
		return errors.New("model unavailable")
	}

	switch o := out.(type) {
	case *schemas.URLSelection:
		o.URL = c.homepage
	case *schemas.CSSSelector:
		if req.Intent == schemas.IntentChangeEmailControl {
			*o = c.emailControl
		} else {
			*o = c.loginControl
		}
	case *schemas.PageAnalysis:
		if c.loginPage != nil {
			*o = c.loginPage(n)
		}
	case *schemas.ChangeEmailSectionAnalysis:
		if c.emailSection != nil {
			*o = c.emailSection(n)
		}
	default:
		return fmt.Errorf("unexpected output %T", out)
	}
	return nil
}

func (c *scriptedClassifier) requestsFor(intent schemas.Intent) []schemas.ClassificationRequest {
	var out []schemas.ClassificationRequest
	for _, r := range c.requests {
		if r.Intent == intent {
			out = append(out, r)
		}
	}
	return out
}

func loginFound(int) schemas.PageAnalysis {
	return schemas.PageAnalysis{IsPageReached: true, UsernameSelector: "#user", PasswordSelector: "#pass", SubmitSelector: "#submit"}
}

func emailFound(int) schemas.ChangeEmailSectionAnalysis {
	return schemas.ChangeEmailSectionAnalysis{IsPageReached: true}
}

func emailNotYet(n int) schemas.ChangeEmailSectionAnalysis {
	return schemas.ChangeEmailSectionAnalysis{NextActionLocation: strings.Repeat("More ", n) + "settings"}
}
