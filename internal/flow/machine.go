// internal/flow/machine.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/retry"
	"github.com/xkilldash9x/waypoint/internal/session"
	"github.com/xkilldash9x/waypoint/internal/verify"
)

// ErrStepLimit is returned if the machine exceeds its step budget. With a
// bounded retry policy this indicates a broken transition table.
var ErrStepLimit = errors.New("navigation flow exceeded its step budget")

// Deps are the collaborators a Machine drives.
type Deps struct {
	Driver      schemas.BrowserDriver
	Classifier  schemas.Classifier
	Search      schemas.SearchProvider
	Credentials config.CredentialsConfig
	Network     config.NetworkConfig
	Run         config.RunConfig
	// SearchResults is how many candidates homepage discovery asks for.
	SearchResults int
	// Debug logs page summaries handed to the classifier.
	Debug  bool
	Logger *zap.Logger
}

// FromSession fills the browser, credentials and settings from a session.
func FromSession(sess *session.Context, classifier schemas.Classifier, search schemas.SearchProvider, logger *zap.Logger) Deps {
	cfg := sess.Config
	return Deps{
		Driver:        sess.Driver,
		Classifier:    classifier,
		Search:        search,
		Credentials:   sess.Credentials,
		Network:       cfg.Network,
		Run:           cfg.Run,
		SearchResults: cfg.Search.Results,
		Debug:         cfg.Browser.Debug,
		Logger:        logger,
	}
}

// Input is what a run starts from.
type Input struct {
	TargetName string
	InitialURL string
}

// Result is the outcome of a run along with the final state for diagnostics.
type Result struct {
	Status   Status        `json:"status" yaml:"status"`
	State    RunState      `json:"state" yaml:"state"`
	Steps    int           `json:"steps" yaml:"steps"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// TransitionHook observes every transition. st is a snapshot.
type TransitionHook func(from, to State, st RunState)

// StepHook observes every executed step and its duration.
type StepHook func(s State, took time.Duration, err error)

type stepFunc func(ctx context.Context, st *RunState) (Update, error)

// Machine sequences the navigation flow over a fixed transition table.
type Machine struct {
	deps      Deps
	policy    retry.Policy
	inspector *verify.Inspector
	logger    *zap.Logger

	steps       map[State]stepFunc
	transitions map[State]func(*RunState) State

	onTransition []TransitionHook
	onStep       []StepHook
}

// NewMachine validates deps and builds the machine.
func NewMachine(deps Deps) (*Machine, error) {
	if deps.Driver == nil {
		return nil, fmt.Errorf("navigation flow requires a browser driver")
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("navigation flow requires a classifier")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Run.Goal == "" {
		deps.Run.Goal = config.GoalChangeEmail
	}
	if deps.SearchResults <= 0 {
		deps.SearchResults = 5
	}
	deps.Network = withNetworkDefaults(deps.Network)

	m := &Machine{
		deps:      deps,
		policy:    retry.New(deps.Run.RetryCeiling),
		inspector: verify.NewInspector(deps.Driver, deps.Logger, deps.Network.ProbeTimeout),
		logger:    deps.Logger.Named("flow"),
	}
	m.steps = map[State]stepFunc{
		StateStart:                     m.start,
		StateDiscoverURL:               m.discoverURL,
		StateLocateLoginControl:        m.locateLoginControl,
		StateNavigateTowardLogin:       m.navigate,
		StateVerifyLoginPageReached:    m.verifyLoginPage,
		StatePerformLogin:              m.performLogin,
		StateLocateChangeEmailControl:  m.locateChangeEmailControl,
		StateNavigateTowardChangeEmail: m.navigate,
		StateVerifyChangeEmailReached:  m.verifyChangeEmailSection,
	}
	m.transitions = map[State]func(*RunState) State{
		StateStart: func(st *RunState) State {
			if st.CurrentURL == "" {
				return StateDiscoverURL
			}
			return StateLocateLoginControl
		},
		StateDiscoverURL:         always(StateLocateLoginControl),
		StateLocateLoginControl:  always(StateNavigateTowardLogin),
		StateNavigateTowardLogin: always(StateVerifyLoginPageReached),
		StateVerifyLoginPageReached: func(st *RunState) State {
			if m.policy.ShouldRetry(st.LoginPageReached, st.RetryCount) {
				return StateLocateLoginControl
			}
			if m.deps.Run.Goal == config.GoalLoginPage {
				return StateEnd
			}
			return StatePerformLogin
		},
		StatePerformLogin: func(st *RunState) State {
			if st.LoginSucceeded != nil && *st.LoginSucceeded {
				return StateLocateChangeEmailControl
			}
			return StateEnd
		},
		StateLocateChangeEmailControl:  always(StateNavigateTowardChangeEmail),
		StateNavigateTowardChangeEmail: always(StateVerifyChangeEmailReached),
		StateVerifyChangeEmailReached: func(st *RunState) State {
			if m.policy.ShouldRetry(st.ChangeEmailSectionReached, st.RetryCount) {
				return StateLocateChangeEmailControl
			}
			return StateEnd
		},
	}
	return m, nil
}

func always(s State) func(*RunState) State {
	return func(*RunState) State { return s }
}

// OnTransition registers a hook called after every transition.
func (m *Machine) OnTransition(h TransitionHook) {
	m.onTransition = append(m.onTransition, h)
}

// OnStep registers a hook called after every executed step.
func (m *Machine) OnStep(h StepHook) {
	m.onStep = append(m.onStep, h)
}

// maxSteps bounds a run: both phases at the ceiling plus the fixed steps.
func (m *Machine) maxSteps() int {
	return 6*m.policy.Ceiling + 8
}

// Run drives the flow from Start to End. Browser failures are recorded in the
// state and never returned. Classifier and discovery failures, cancellation and
// the step budget abort the run; the returned Result then holds the state so far.
func (m *Machine) Run(ctx context.Context, in Input) (*Result, error) {
	if in.TargetName == "" && in.InitialURL == "" {
		return nil, fmt.Errorf("a target name or an initial url is required")
	}
	started := time.Now()
	st := RunState{
		TargetName: in.TargetName,
		InitialURL: in.InitialURL,
		URLHistory: []string{},
		Status:     StatusSearching,
	}
	res := &Result{}
	finish := func(err error) (*Result, error) {
		if err != nil {
			st.Status = StatusFailed
			st.LastError = describeAbort(err)
		}
		res.Status = st.Status
		res.State = st.Clone()
		res.Duration = time.Since(started)
		return res, err
	}

	m.logger.Info("Starting navigation flow.",
		zap.String("target", in.TargetName),
		zap.String("initial_url", in.InitialURL),
		zap.String("goal", m.deps.Run.Goal))

	cur := StateStart
	for cur != StateEnd {
		if res.Steps >= m.maxSteps() {
			return finish(fmt.Errorf("%w (%d steps)", ErrStepLimit, res.Steps))
		}
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("navigation flow interrupted in %s: %w", cur, err))
		}

		stepStart := time.Now()
		u, err := m.steps[cur](ctx, &st)
		st.Apply(u)
		res.Steps++
		for _, h := range m.onStep {
			h(cur, time.Since(stepStart), err)
		}
		if err != nil {
			m.logger.Error("Navigation flow aborted.", zap.Stringer("state", cur), zap.Error(err))
			return finish(fmt.Errorf("%s: %w", cur, err))
		}

		next := m.transitions[cur](&st)
		if next == StateEnd {
			m.finalize(&st)
		}
		m.logger.Debug("Transition.",
			zap.Stringer("from", cur),
			zap.Stringer("to", next),
			zap.Int("retry_count", st.RetryCount),
			zap.String("current_url", st.CurrentURL))
		for _, h := range m.onTransition {
			h(cur, next, st.Clone())
		}
		cur = next
	}

	res, _ = finish(nil)
	m.logger.Info("Navigation flow finished.",
		zap.String("status", string(res.Status)),
		zap.Int("steps", res.Steps),
		zap.Int("navigations", len(res.State.URLHistory)),
		zap.String("last_error", res.State.LastError),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// finalize settles the terminal status unless a step already failed the run.
func (m *Machine) finalize(st *RunState) {
	if st.Status == StatusFailed {
		return
	}
	reached, page, unreached := st.ChangeEmailSectionReached, "change email section", StatusFailed
	if m.deps.Run.Goal == config.GoalLoginPage {
		reached, page, unreached = st.LoginPageReached, "login page", StatusSearching
	}
	if reached {
		st.Status = StatusSuccess
		return
	}
	st.Status = unreached
	if m.policy.Exhausted(reached, st.RetryCount) {
		st.LastError = KindRetryExhausted.Describe("%s not confirmed after %d attempts", page, st.RetryCount)
	}
}

func describeAbort(err error) string {
	if errors.Is(err, ErrClassifier) {
		return KindClassifierFailure.Describe("%v", err)
	}
	return err.Error()
}

func withNetworkDefaults(n config.NetworkConfig) config.NetworkConfig {
	d := config.NewDefaultConfig().Network
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&n.NavigationTimeout, d.NavigationTimeout)
	fill(&n.ClickTimeout, d.ClickTimeout)
	fill(&n.FillTimeout, d.FillTimeout)
	fill(&n.LoadTimeout, d.LoadTimeout)
	fill(&n.SubmitLoadTimeout, d.SubmitLoadTimeout)
	fill(&n.ModalSettle, d.ModalSettle)
	fill(&n.IdleTimeout, d.IdleTimeout)
	fill(&n.ProbeTimeout, d.ProbeTimeout)
	return n
}
