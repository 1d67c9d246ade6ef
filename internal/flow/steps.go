// internal/flow/steps.go
package flow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/navigation"
)

// -- Start & discovery --

func (m *Machine) start(_ context.Context, st *RunState) (Update, error) {
	if st.InitialURL == "" {
		return Update{}, nil
	}
	return Update{CurrentURL: ptr(st.InitialURL)}, nil
}

func (m *Machine) discoverURL(ctx context.Context, st *RunState) (Update, error) {
	if m.deps.Search == nil {
		return Update{}, fmt.Errorf("%w: no search provider configured", ErrDiscovery)
	}
	query := fmt.Sprintf("%s official website", st.TargetName)
	candidates, err := m.deps.Search.Search(ctx, query, m.deps.SearchResults)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	if len(candidates) == 0 {
		return Update{}, fmt.Errorf("%w: no search results for %q", ErrDiscovery, query)
	}
	m.logger.Debug("Search returned candidates.", zap.Strings("candidates", candidates))

	var pick schemas.URLSelection
	err = m.classify(ctx, schemas.ClassificationRequest{
		Shape:      schemas.ShapeURLSelection,
		Intent:     schemas.IntentHomepage,
		Prompt:     homepagePrompt(st.TargetName, candidates),
		Subject:    st.TargetName,
		Candidates: candidates,
	}, &pick)
	if err != nil {
		return Update{}, err
	}
	m.logger.Info("Homepage selected.", zap.String("url", pick.URL))
	return Update{CurrentURL: ptr(pick.URL)}, nil
}

// -- Locate --

func (m *Machine) locateLoginControl(ctx context.Context, st *RunState) (Update, error) {
	return m.locate(ctx, st, schemas.IntentLoginControl)
}

func (m *Machine) locateChangeEmailControl(ctx context.Context, st *RunState) (Update, error) {
	return m.locate(ctx, st, schemas.IntentChangeEmailControl)
}

// locate asks the classifier for the next control to use. Browser failures
// leave no pending target, which the navigate step records.
func (m *Machine) locate(ctx context.Context, st *RunState, intent schemas.Intent) (Update, error) {
	u := clearedPending()
	if err := m.syncLocation(ctx, st.CurrentURL); err != nil {
		u.LastError = ptr(KindRecoverableNavigation.Describe("could not load %s: %v", st.CurrentURL, err))
		return u, nil
	}

	elements, err := interactiveElements(ctx, m.deps.Driver, m.deps.Run.MaxElements)
	if err != nil {
		u.LastError = ptr(KindRecoverableNavigation.Describe("%v", err))
		return u, nil
	}
	if len(elements) == 0 {
		u.LastError = ptr(KindRecoverableNavigation.Describe("no interactive elements on %s", st.CurrentURL))
		return u, nil
	}
	m.logger.Debug("Extracted interactive elements.", zap.Int("count", len(elements)), zap.String("intent", string(intent)))

	req := schemas.ClassificationRequest{
		Shape:    schemas.ShapeCSSSelector,
		Intent:   intent,
		Elements: elements,
	}
	if intent == schemas.IntentChangeEmailControl {
		req.Subject = st.NextActionHint
		req.Prompt = changeEmailControlPrompt(st.NextActionHint, elements)
	} else {
		req.Subject = st.TargetName
		req.Prompt = loginControlPrompt(elements)
	}

	var sel schemas.CSSSelector
	if err := m.classify(ctx, req, &sel); err != nil {
		return u, err
	}

	target, byText := sel.Selector, false
	// The change-email entry point is identified by its link text.
	if (intent == schemas.IntentChangeEmailControl && sel.Text != "") || target == "" {
		target, byText = sel.Text, true
	}
	method := navigation.Resolve(sel.Href)
	u.PendingTarget = ptr(target)
	u.PendingHref = ptr(sel.Href)
	u.PendingIsText = ptr(byText)
	u.NavigationMethod = ptr(method)

	m.logger.Info("Control located.",
		zap.String("intent", string(intent)),
		zap.String("target", target),
		zap.Bool("by_text", byText),
		zap.String("href", sel.Href),
		zap.String("method", string(method)))
	return u, nil
}

func clearedPending() Update {
	return Update{
		PendingTarget:    ptr(""),
		PendingHref:      ptr(""),
		PendingIsText:    ptr(false),
		NavigationMethod: ptr(navigation.Method("")),
	}
}

// syncLocation loads want unless the page is already there.
func (m *Machine) syncLocation(ctx context.Context, want string) error {
	if want == "" {
		return fmt.Errorf("no current url")
	}
	if have, err := m.deps.Driver.CurrentURL(ctx); err == nil && have == want {
		return nil
	}
	navCtx, cancel := context.WithTimeout(ctx, m.deps.Network.NavigationTimeout)
	defer cancel()
	return m.deps.Driver.Navigate(navCtx, want, schemas.WaitDOMContentLoaded)
}

// -- Navigate --

// navigate performs one navigation attempt. It always records the location
// before the attempt and never fails the run.
func (m *Machine) navigate(ctx context.Context, st *RunState) (Update, error) {
	before := st.CurrentURL
	u := Update{AppendHistory: []string{before}}

	var err error
	switch {
	case st.NavigationMethod == navigation.MethodFollowURL && st.PendingHref != "":
		err = m.followURL(ctx, before, st.PendingHref)
	case st.PendingTarget != "":
		err = m.click(ctx, st.PendingTarget, st.PendingIsText)
	default:
		err = fmt.Errorf("no control was located")
	}
	if err != nil {
		m.logger.Warn("Navigation attempt failed, staying on current page.", zap.String("url", before), zap.Error(err))
		u.LastError = ptr(KindRecoverableNavigation.Describe("%v", err))
		return u, nil
	}

	after, err := m.deps.Driver.CurrentURL(ctx)
	if err != nil || after == "" {
		after = before
	}
	u.CurrentURL = ptr(after)
	m.logger.Debug("Navigation attempt completed.", zap.String("from", before), zap.String("to", after))
	return u, nil
}

func (m *Machine) followURL(ctx context.Context, base, href string) error {
	target, err := navigation.ResolveURL(base, href)
	if err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(ctx, m.deps.Network.NavigationTimeout)
	defer cancel()
	if err := m.deps.Driver.Navigate(navCtx, target, schemas.WaitDOMContentLoaded); err != nil {
		return fmt.Errorf("navigate to %s: %w", target, err)
	}
	return nil
}

func (m *Machine) click(ctx context.Context, target string, byText bool) error {
	n := m.deps.Network
	var err error
	if byText {
		err = m.deps.Driver.ClickByText(ctx, target, n.ClickTimeout)
	} else {
		err = m.deps.Driver.Click(ctx, target, n.ClickTimeout)
	}
	if err != nil {
		return fmt.Errorf("click %q: %w", target, err)
	}
	// No load usually means the click opened a modal.
	if err := m.deps.Driver.WaitForLoad(ctx, n.LoadTimeout); err != nil {
		_ = m.deps.Driver.WaitIdle(ctx, n.ModalSettle)
	}
	return nil
}

// -- Verify --

func (m *Machine) verifyLoginPage(ctx context.Context, st *RunState) (Update, error) {
	attempts := st.RetryCount + 1
	u := Update{RetryCount: ptr(attempts), LoginPageReached: ptr(false)}

	page, err := pageSummary(ctx, m.deps.Driver)
	if err != nil {
		m.logger.Warn("Could not inspect page, counting as not reached.", zap.Int("attempt", attempts), zap.Error(err))
		return u, nil
	}
	m.debugPage(page)

	var verdict schemas.PageAnalysis
	err = m.classify(ctx, schemas.ClassificationRequest{
		Shape:   schemas.ShapePageAnalysis,
		Intent:  schemas.IntentLoginPage,
		Prompt:  loginPagePrompt(page),
		Subject: st.TargetName,
		Page:    page,
	}, &verdict)
	if err != nil {
		return u, err
	}

	u.LoginPageReached = ptr(verdict.IsPageReached)
	if verdict.IsPageReached {
		u.UsernameSelector = ptr(verdict.UsernameSelector)
		u.PasswordSelector = ptr(verdict.PasswordSelector)
		u.SubmitSelector = ptr(verdict.SubmitSelector)
	}
	m.logger.Info("Login page check.", zap.Int("attempt", attempts), zap.Bool("reached", verdict.IsPageReached), zap.String("url", page.URL))
	return u, nil
}

func (m *Machine) verifyChangeEmailSection(ctx context.Context, st *RunState) (Update, error) {
	attempts := st.RetryCount + 1
	u := Update{RetryCount: ptr(attempts), ChangeEmailSectionReached: ptr(false)}

	page, err := pageSummary(ctx, m.deps.Driver)
	if err != nil {
		m.logger.Warn("Could not inspect page, counting as not reached.", zap.Int("attempt", attempts), zap.Error(err))
		return u, nil
	}
	m.debugPage(page)

	var verdict schemas.ChangeEmailSectionAnalysis
	err = m.classify(ctx, schemas.ClassificationRequest{
		Shape:   schemas.ShapeChangeEmailSectionAnalysis,
		Intent:  schemas.IntentChangeEmailSection,
		Prompt:  changeEmailSectionPrompt(page),
		Subject: st.TargetName,
		Page:    page,
	}, &verdict)
	if err != nil {
		return u, err
	}

	u.ChangeEmailSectionReached = ptr(verdict.IsPageReached)
	u.NextActionHint = ptr(verdict.NextActionLocation)
	m.logger.Info("Change email section check.",
		zap.Int("attempt", attempts),
		zap.Bool("reached", verdict.IsPageReached),
		zap.String("next_action", verdict.NextActionLocation),
		zap.String("url", page.URL))
	return u, nil
}

func (m *Machine) debugPage(page *schemas.PageSummary) {
	if !m.deps.Debug {
		return
	}
	m.logger.Debug("Page summary.",
		zap.String("url", page.URL),
		zap.String("title", page.Title),
		zap.Strings("headings", page.Headings),
		zap.Int("forms", page.Forms),
		zap.Int("inputs", len(page.Inputs)),
		zap.Int("buttons", len(page.Buttons)),
		zap.Int("links", len(page.Links)))
}

// -- Login --

// performLogin makes exactly one login attempt.
func (m *Machine) performLogin(ctx context.Context, st *RunState) (Update, error) {
	u := Update{LoginSucceeded: ptr(false)}
	fail := func(kind ErrorKind, format string, args ...interface{}) (Update, error) {
		u.LastError = ptr(kind.Describe(format, args...))
		u.Status = ptr(StatusFailed)
		m.logger.Warn("Login failed.", zap.String("reason", *u.LastError))
		return u, nil
	}

	if !m.deps.Credentials.Present() {
		return fail(KindMissingCredentials, "no username or password configured")
	}
	// The gate proceeds here after the ceiling; this step records the exhaustion.
	if !st.LoginPageReached {
		return fail(KindRetryExhausted, "login page not confirmed after %d attempts", st.RetryCount)
	}
	if st.UsernameSelector == "" || st.PasswordSelector == "" {
		return fail(KindMissingCredentials, "login form fields were not identified")
	}

	driver, n := m.deps.Driver, m.deps.Network
	preLoginURL := st.CurrentURL
	if loc, err := driver.CurrentURL(ctx); err == nil && loc != "" {
		preLoginURL = loc
	}

	if err := driver.Fill(ctx, st.UsernameSelector, m.deps.Credentials.Username, n.FillTimeout); err != nil {
		return fail(KindVerificationNegative, "fill username %q: %v", st.UsernameSelector, err)
	}
	if err := driver.Fill(ctx, st.PasswordSelector, m.deps.Credentials.Password, n.FillTimeout); err != nil {
		return fail(KindVerificationNegative, "fill password %q: %v", st.PasswordSelector, err)
	}
	if err := m.submit(ctx, st.SubmitSelector, st.PasswordSelector); err != nil {
		return fail(KindVerificationNegative, "%v", err)
	}

	_ = driver.WaitForLoad(ctx, n.SubmitLoadTimeout)
	_ = driver.WaitIdle(ctx, n.IdleTimeout)

	if loc, err := driver.CurrentURL(ctx); err == nil && loc != "" {
		u.CurrentURL = ptr(loc)
	}

	ok, signals, err := m.inspector.Outcome(ctx, preLoginURL, st.UsernameSelector, st.PasswordSelector)
	if err != nil {
		return fail(KindVerificationNegative, "could not inspect page after login: %v", err)
	}
	if !ok {
		return fail(KindVerificationNegative,
			"login not confirmed (url_changed=%t form_gone=%t no_errors_shown=%t success_cues=%t)",
			signals.URLChanged, signals.FormGone, signals.NoErrorsShown, signals.SuccessCuesPresent)
	}

	// The change-email phase gets its own retry budget.
	u.LoginSucceeded = ptr(true)
	u.LoginPageAttempts = ptr(st.RetryCount)
	u.RetryCount = ptr(0)
	m.logger.Info("Login succeeded.", zap.String("url", preLoginURL))
	return u, nil
}

// submit clicks the submit control, falling back to submitting the form.
func (m *Machine) submit(ctx context.Context, submitSelector, passwordSelector string) error {
	if submitSelector != "" {
		err := m.deps.Driver.Click(ctx, submitSelector, m.deps.Network.ClickTimeout)
		if err == nil {
			return nil
		}
		m.logger.Debug("Submit click failed, submitting the form directly.", zap.String("selector", submitSelector), zap.Error(err))
	}
	submitted, err := submitForm(ctx, m.deps.Driver, passwordSelector)
	if err != nil {
		return err
	}
	if !submitted {
		return fmt.Errorf("no login form to submit")
	}
	return nil
}

// -- Classifier --

func (m *Machine) classify(ctx context.Context, req schemas.ClassificationRequest, out interface{}) error {
	if err := m.deps.Classifier.Classify(ctx, req, out); err != nil {
		return fmt.Errorf("%w (%s): %w", ErrClassifier, req.Shape, err)
	}
	return nil
}
