package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type AuthState int

const (
	AuthNotStarted AuthState = iota
	AuthNavigated
	AuthLoginControlLocated
	AuthFormFilled
	AuthSubmitted
	AuthVerified
)

func (s AuthState) String() string {
	return [...]string{"not-started", "navigated", "login-control-located", "form-filled", "submitted", "verified"}[s]
}

// AuthWorkflow logs in once. It never retries; retries belong to the orchestrator.
type AuthWorkflow struct {
	s      *Session
	creds  Credentials
	state  AuthState
	logger zerolog.Logger
}

func NewAuthWorkflow(s *Session, creds Credentials) *AuthWorkflow {
	return &AuthWorkflow{
		s:      s,
		creds:  creds,
		logger: s.logger.With().Str("component", "auth").Logger(),
	}
}

// State is the last state the workflow reached.
func (a *AuthWorkflow) State() AuthState {
	return a.state
}

func (a *AuthWorkflow) fail(step string, err error) error {
	a.logger.Warn().Err(err).Str("state", a.state.String()).Msg(T("login_failed"))
	return &WorkflowError{Step: step, Err: err}
}

func (a *AuthWorkflow) Login(ctx context.Context) error {
	s := a.s
	sel := s.Config.Selectors
	a.state = AuthNotStarted
	a.logger.Info().Str("account", a.creds.String()).Msg(T("login_starting"))

	if err := s.Surface.Navigate(ctx, s.Config.BaseURL); err != nil {
		return a.fail("navigate", err)
	}
	if err := s.Blocks.EnsureClear(ctx); err != nil {
		return a.fail("navigate", err)
	}
	a.state = AuthNavigated
	s.Human.SimulateBrowsing(ctx)

	loginList, err := s.locators(sel.LoginButton, "")
	if err != nil {
		return a.fail("login_control", err)
	}
	s.Human.SimulateBrowsing(ctx)
	control, loc, ok := s.Resolver.Resolve(ctx, loginList, ResolveOptions{})
	if !ok {
		return a.fail("login_control", ErrLoginControlNotFound)
	}
	a.logger.Debug().Str("locator", loc.String()).Msg("login control found")
	if err := control.Hover(); err != nil {
		a.logger.Debug().Err(err).Msg("hover on login control failed")
	}
	s.Human.Pause(ctx)
	if err := control.Click(); err != nil {
		return a.fail("login_control", fmt.Errorf("click login control: %w", err))
	}
	a.state = AuthLoginControlLocated
	s.settle(ctx)

	if err := a.fillForm(ctx); err != nil {
		return a.fail("login_form", err)
	}
	a.state = AuthFormFilled

	if err := a.submit(ctx); err != nil {
		return a.fail("login_submit", err)
	}
	a.state = AuthSubmitted
	s.settle(ctx)

	if err := a.verify(ctx); err != nil {
		return a.fail("login_verify", err)
	}
	a.state = AuthVerified
	a.logger.Info().Msg(T("login_success"))
	return nil
}

func (a *AuthWorkflow) fillForm(ctx context.Context) error {
	s := a.s
	fields := []struct {
		name  string
		specs []string
		value string
	}{
		{"email", s.Config.Selectors.EmailField, a.creds.Email()},
		{"password", s.Config.Selectors.PasswordField, a.creds.Password()},
	}

	for i, f := range fields {
		list, err := s.locators(f.specs, "")
		if err != nil {
			return err
		}
		if i > 0 {
			s.Human.Pause(ctx)
		}
		field, _, ok := s.Resolver.Resolve(ctx, list, ResolveOptions{})
		if !ok {
			return &FieldNotFoundError{Field: f.name}
		}
		if err := s.Human.SimulateTyping(ctx, field, f.value); err != nil {
			return fmt.Errorf("fill %s: %w", f.name, err)
		}
	}
	return nil
}

// submit clicks the submit control, or presses Enter when there is none.
func (a *AuthWorkflow) submit(ctx context.Context) error {
	s := a.s
	list, err := s.locators(s.Config.Selectors.SubmitLogin, "")
	if err != nil {
		return err
	}
	s.Human.Pause(ctx)
	button, _, ok := s.Resolver.Resolve(ctx, list, ResolveOptions{RequireEnabled: true})
	if ok {
		if err := button.Hover(); err != nil {
			a.logger.Debug().Err(err).Msg("hover on submit failed")
		}
		if err := button.Click(); err == nil {
			return nil
		}
		a.logger.Debug().Msg("submit click failed, falling back to Enter")
	}
	return s.Surface.PressEnter()
}

// verify requires no error message, no block page, and at least one
// positive signal: a logged-in indicator or a URL off the login path.
func (a *AuthWorkflow) verify(ctx context.Context) error {
	s := a.s
	sel := s.Config.Selectors

	errList, err := s.locators(sel.LoginError, "")
	if err != nil {
		return err
	}
	if h, _, ok := s.Resolver.ResolveAny(ctx, errList, ms(s.Config.Timeouts.BlockCheckMs)); ok {
		text, _ := h.Text()
		return &VerificationError{What: "login", Detail: strings.TrimSpace(text)}
	}

	if kind := s.Blocks.Detect(ctx); kind != BlockNone {
		return &BlockedError{Kind: kind}
	}

	okList, err := s.locators(sel.LoggedIn, "")
	if err != nil {
		return err
	}
	if _, loc, ok := s.Resolver.ResolveAny(ctx, okList, s.Config.ElementTimeout()); ok {
		a.logger.Debug().Str("locator", loc.String()).Msg("logged-in indicator visible")
		return nil
	}

	url := strings.ToLower(s.Surface.URL())
	if url != "" && !containsAny(url, s.Config.LoginPathMarkers) {
		// Weak signal: a redirect away from login without an indicator.
		a.logger.Warn().Str("url", url).Msg(T("login_url_only_signal"))
		return nil
	}

	return &VerificationError{What: "login", Detail: "no logged-in signal"}
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
