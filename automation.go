package main

import (
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

// Automation owns the single browser session of a run. It is created once at
// startup and closed exactly once, whatever the exit path.
type Automation struct {
	config    *Config
	browser   *rod.Browser
	page      *rod.Page
	launcher  *launcher.Launcher
	rand      *rand.Rand
	logger    zerolog.Logger
	closeOnce sync.Once
}

func NewAutomation(config *Config, logger zerolog.Logger) *Automation {
	return &Automation{
		config: config,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger.With().Str("component", "browser").Logger(),
	}
}

func (a *Automation) Close() {
	a.closeOnce.Do(func() {
		a.logger.Info().Msg(T("cleaning_up"))

		if a.page != nil {
			a.page.Close()
		}

		if a.browser != nil {
			a.browser.Close()
		}

		if a.launcher != nil {
			a.launcher.Cleanup()
		}

		a.logger.Info().Msg(T("browser_destroyed"))
	})
}

func (a *Automation) isBrowserAlive() bool {
	if a.browser == nil {
		return false
	}

	if _, err := a.browser.Version(); err != nil {
		a.logger.Debug().Err(err).Msg("browser version check failed")
		return false
	}

	if a.page != nil {
		if _, err := a.page.Info(); err != nil {
			a.logger.Debug().Err(err).Msg("page info check failed")
			return false
		}
	}

	return true
}

func (a *Automation) setupBrowser() error {
	a.logger.Info().Msg(T("browser_launching"))

	// Disable leakless mode on Windows to prevent deadlock
	// See: https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	chromePath, chromeExists := launcher.LookPath()

	a.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(a.config.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("lang", strings.SplitN(a.config.Evasion.AcceptLanguage, ",", 2)[0]).
		Set("window-size", fmt.Sprintf("%d,%d", a.config.ViewportWidth, a.config.ViewportHeight))

	// Must be set before Bin()
	if a.config.BrowserProfilePath != "" {
		a.launcher = a.launcher.UserDataDir(a.config.BrowserProfilePath)
		a.logger.Debug().Str("path", a.config.BrowserProfilePath).Msg("browser profile set")
	}

	if chromeExists {
		a.launcher = a.launcher.Bin(chromePath)
		a.logger.Debug().Str("path", chromePath).Msg(T("browser_using_system_chrome"))
	} else {
		a.logger.Info().Msg(T("browser_chrome_not_found"))
	}

	url, err := a.launcher.Launch()
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "ProcessSingleton") || strings.Contains(errMsg, "SingletonLock") {
			return fmt.Errorf("%s: %w", T("error_chrome_already_running"), err)
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	a.browser = rod.New().ControlURL(url)
	if err := a.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	a.logger.Info().Msg(T("browser_launched"))
	return nil
}

// openSurface creates the stealth page, applies the evasion profile and
// returns it wrapped as a Surface.
func (a *Automation) openSurface(profile *EvasionProfile) (Surface, error) {
	var err error
	a.page, err = stealth.Page(a.browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	if err := profile.Apply(a.page, a.config.BaseURL, a.logger); err != nil {
		return nil, err
	}

	return newRodSurface(a.page, a.config.PageTimeout(), a.config.ElementTimeout()), nil
}

// keepOpen leaves a headed browser up for inspection after the run.
func (a *Automation) keepOpen() {
	if a.config.Headless || a.config.KeepBrowserOpenSeconds <= 0 || !a.isBrowserAlive() {
		return
	}
	a.logger.Info().Msgf(T("keeping_browser_open"), a.config.KeepBrowserOpenSeconds)
	time.Sleep(time.Duration(a.config.KeepBrowserOpenSeconds) * time.Second)
}
