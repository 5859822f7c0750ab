package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Build-time credential defaults, set with
// -ldflags "-X main.buildEmail=... -X main.buildPassword=...".
var (
	buildEmail    string
	buildPassword string
)

type Config struct {
	BaseURL  string `yaml:"base_url"`
	CartPath string `yaml:"cart_path"`
	SKU      string `yaml:"sku"`

	Credentials CredentialConfig `yaml:"credentials"`

	BrowserProfilePath string `yaml:"browser_profile_path"`

	Headless               bool `yaml:"headless"`
	KeepBrowserOpenSeconds int  `yaml:"keep_browser_open_seconds"`
	ViewportWidth          int  `yaml:"viewport_width"`
	ViewportHeight         int  `yaml:"viewport_height"`

	MaxRetries   int `yaml:"max_retries"`
	RetryDelayMs int `yaml:"retry_delay_ms"`

	Timeouts TimeoutConfig `yaml:"timeouts"`
	Evasion  EvasionConfig `yaml:"evasion"`

	// URL fragments that mean "still on the login flow".
	LoginPathMarkers []string `yaml:"login_path_markers"`

	ScreenshotDir string `yaml:"screenshot_dir"`
	LogLevel      string `yaml:"log_level"`
	DebugMode     bool   `yaml:"debug_mode"`

	Selectors SelectorConfig `yaml:"selectors"`
}

type CredentialConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type TimeoutConfig struct {
	PageMs         int `yaml:"page_ms"`
	ElementMs      int `yaml:"element_ms"`
	BlockCheckMs   int `yaml:"block_check_ms"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
	SettleMinMs    int `yaml:"settle_min_ms"`
	SettleMaxMs    int `yaml:"settle_max_ms"`
	ResultSettleMs int `yaml:"result_settle_ms"`
}

type EvasionConfig struct {
	UserAgent      string `yaml:"user_agent"`
	AcceptLanguage string `yaml:"accept_language"`
	Platform       string `yaml:"platform"`
	Timezone       string `yaml:"timezone"`

	MinPauseMs    int `yaml:"min_pause_ms"`
	MaxPauseMs    int `yaml:"max_pause_ms"`
	MinKeyDelayMs int `yaml:"min_key_delay_ms"`
	MaxKeyDelayMs int `yaml:"max_key_delay_ms"`
	// Unit for the short waits between pointer moves and scrolls.
	StepDelayMs int `yaml:"step_delay_ms"`
	// Extra random spread added on top of every scripted wait.
	JitterMs int `yaml:"jitter_ms"`

	BlockWaitMinMs      int `yaml:"block_wait_min_ms"`
	BlockWaitMaxMs      int `yaml:"block_wait_max_ms"`
	BlockRecoveryRounds int `yaml:"block_recovery_rounds"`

	Cookies []CookieConfig `yaml:"cookies"`
}

type CookieConfig struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
	Domain string `yaml:"domain"`
	Path   string `yaml:"path"`
}

// SelectorConfig holds ranked locator lists per element role.
// Entries use the ParseLocator string form; {sku} is replaced at run time.
type SelectorConfig struct {
	LoginButton   []string `yaml:"login_button"`
	EmailField    []string `yaml:"email_field"`
	PasswordField []string `yaml:"password_field"`
	SubmitLogin   []string `yaml:"submit_login"`
	LoginError    []string `yaml:"login_error"`
	LoggedIn      []string `yaml:"logged_in"`

	SearchInput   []string `yaml:"search_input"`
	SearchSubmit  []string `yaml:"search_submit"`
	NoResults     []string `yaml:"no_results"`
	ProductResult []string `yaml:"product_result"`
	ProductExact  []string `yaml:"product_exact"`
	AddToCart     []string `yaml:"add_to_cart"`
	CartSuccess   []string `yaml:"cart_success"`
	CartCounter   []string `yaml:"cart_counter"`

	DeliveryDate []string `yaml:"delivery_date"`
	CartSections []string `yaml:"cart_sections"`

	ChallengeBlock []string `yaml:"challenge_block"`
	CustomBlock    []string `yaml:"custom_block"`
	RateLimitBlock []string `yaml:"rate_limit_block"`
	BlockTitles    []string `yaml:"block_titles"`
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		BaseURL:                "https://www.lider.cl",
		CartPath:               "/supermercado/cart",
		BrowserProfilePath:     filepath.Join(userDataDir, "browser-profile"),
		Headless:               false,
		KeepBrowserOpenSeconds: 0,
		ViewportWidth:          1366,
		ViewportHeight:         768,
		MaxRetries:             3,
		RetryDelayMs:           5000,
		Timeouts: TimeoutConfig{
			PageMs:         30000,
			ElementMs:      2000,
			BlockCheckMs:   1500,
			PollIntervalMs: 100,
			SettleMinMs:    1500,
			SettleMaxMs:    3000,
			ResultSettleMs: 3000,
		},
		Evasion: EvasionConfig{
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			AcceptLanguage:      "es-CL,es;q=0.9,en;q=0.8",
			Platform:            "Win32",
			Timezone:            "America/Santiago",
			MinPauseMs:          400,
			MaxPauseMs:          1200,
			MinKeyDelayMs:       60,
			MaxKeyDelayMs:       180,
			StepDelayMs:         20,
			JitterMs:            500,
			BlockWaitMinMs:      10000,
			BlockWaitMaxMs:      25000,
			BlockRecoveryRounds: 2,
		},
		LoginPathMarkers: []string{"/login", "/signin", "/auth", "iniciar-sesion"},
		ScreenshotDir:    ".",
		LogLevel:         "info",
		DebugMode:        false,
		Selectors:        DefaultSelectors(),
	}
}

func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		LoginButton: []string{
			`[data-testid="login-button"]`,
			`a[href*="/login"]`,
			`role:button|Iniciar sesión`,
			`text:a, button, span|Inicia sesión`,
			`text:a, button, span|Ingresar`,
		},
		EmailField: []string{
			`input[type="email"]`,
			`attr:input[name="email"]`,
			`attr:input[id*="email"]`,
			`attr:input[autocomplete="username"]`,
		},
		PasswordField: []string{
			`input[type="password"]`,
			`attr:input[name="password"]`,
			`attr:input[id*="password"]`,
		},
		SubmitLogin: []string{
			`form button[type="submit"]`,
			`role:button|Iniciar sesión`,
			`role:button|Ingresar`,
			`input[type="submit"]`,
		},
		LoginError: []string{
			`[data-testid="login-error"]`,
			`.error-message`,
			`role:alert`,
			`text:div, span, p|contraseña incorrecta`,
		},
		LoggedIn: []string{
			`[data-testid="user-menu"]`,
			`.user-name`,
			`text:a, button, span|Mi cuenta`,
			`text:a, button, span|Cerrar sesión`,
		},
		SearchInput: []string{
			`input[type="search"]`,
			`attr:input[name="q"]`,
			`attr:input[placeholder*="Buscar"]`,
			`role:searchbox`,
		},
		SearchSubmit: []string{
			`button[type="submit"][aria-label*="Buscar"]`,
			`form[role="search"] button[type="submit"]`,
			`role:button|Buscar`,
		},
		NoResults: []string{
			`[data-testid="no-results"]`,
			`.no-results`,
			`text:h1, h2, p, div|No encontramos resultados`,
			`text~h1, h2, p, div|0 resultados`,
		},
		ProductResult: []string{
			`[data-testid="product-card"]`,
			`.product-card`,
			`[data-item-id]`,
			`article`,
		},
		ProductExact: []string{
			`attr:[data-sku="{sku}"]`,
			`attr:[data-item-id="{sku}"]`,
			`attr:a[href*="{sku}"]`,
			`text:[data-testid="product-card"], .product-card|{sku}`,
		},
		AddToCart: []string{
			`[data-testid="add-to-cart"]`,
			`button.add-to-cart`,
			`role:button|Agregar al carro`,
			`role:button|Agregar`,
		},
		CartSuccess: []string{
			`[data-testid="added-to-cart"]`,
			`.cart-notification`,
			`text:div, span, p|agregado al carro`,
			`text:div, span, p|Producto agregado`,
		},
		CartCounter: []string{
			`[data-testid="cart-count"]`,
			`.cart-count`,
			`.cart-badge`,
		},
		DeliveryDate: []string{
			`[data-testid="delivery-date"]`,
			`[data-testid="commitment-date"]`,
			`.delivery-date`,
			`.fecha-entrega`,
			`text:span, div, p|Fecha de entrega`,
			`text:span, div, p|Llega el`,
		},
		CartSections: []string{
			`[data-testid="cart-summary"]`,
			`.cart-summary`,
			`.order-summary`,
			`[data-testid="shipping-info"]`,
			`aside`,
		},
		ChallengeBlock: []string{
			`#challenge-form`,
			`#challenge-running`,
			`iframe[src*="challenges.cloudflare.com"]`,
			`.cf-browser-verification`,
			`#px-captcha`,
		},
		CustomBlock: []string{
			`[data-testid="access-denied"]`,
			`text:h1, h2, p|Acceso denegado`,
			`text:h1, h2, p|Access Denied`,
			`a[href*="queue-it.net"]`,
		},
		RateLimitBlock: []string{
			`text:h1, h2, p|Too Many Requests`,
			`text:h1, h2, p|Demasiadas solicitudes`,
		},
		BlockTitles: []string{
			"Just a moment",
			"Attention Required",
			"Access Denied",
			"Acceso denegado",
			"Too Many Requests",
		},
	}
}

// LoadConfig reads path over the defaults, writing the defaults when the file is missing.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LoadDotEnv loads a .env file when one exists. Variables already set in the
// process environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays PROBE_* variables from lookup onto the config.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ValidationError{Field: key, Reason: "not an integer"}
		}
		*dst = n
		return nil
	}

	str("PROBE_BASE_URL", &c.BaseURL)
	str("PROBE_SKU", &c.SKU)
	str("PROBE_EMAIL", &c.Credentials.Email)
	str("PROBE_PASSWORD", &c.Credentials.Password)
	str("PROBE_LOG_LEVEL", &c.LogLevel)

	for key, dst := range map[string]*int{
		"PROBE_MAX_RETRIES":        &c.MaxRetries,
		"PROBE_RETRY_DELAY_MS":     &c.RetryDelayMs,
		"PROBE_PAGE_TIMEOUT_MS":    &c.Timeouts.PageMs,
		"PROBE_ELEMENT_TIMEOUT_MS": &c.Timeouts.ElementMs,
		"PROBE_JITTER_MS":          &c.Evasion.JitterMs,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("PROBE_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return &ValidationError{Field: "PROBE_HEADLESS", Reason: "not a boolean"}
		}
		c.Headless = b
	}
	return nil
}

// Validate enforces the bounds a run depends on.
func (c *Config) Validate() error {
	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return &ValidationError{Field: "max_retries", Reason: "must be within [1, 10]"}
	}
	if c.RetryDelayMs < 1000 || c.RetryDelayMs > 10000 {
		return &ValidationError{Field: "retry_delay_ms", Reason: "must be within [1000, 10000]"}
	}
	if c.Timeouts.PageMs <= 0 || c.Timeouts.ElementMs <= 0 || c.Timeouts.BlockCheckMs <= 0 {
		return &ValidationError{Field: "timeouts", Reason: "must be positive"}
	}
	if c.Timeouts.SettleMinMs > c.Timeouts.SettleMaxMs {
		return &ValidationError{Field: "timeouts.settle_min_ms", Reason: "greater than settle_max_ms"}
	}
	if c.Evasion.MinPauseMs > c.Evasion.MaxPauseMs {
		return &ValidationError{Field: "evasion.min_pause_ms", Reason: "greater than max_pause_ms"}
	}
	if c.Evasion.MinKeyDelayMs > c.Evasion.MaxKeyDelayMs {
		return &ValidationError{Field: "evasion.min_key_delay_ms", Reason: "greater than max_key_delay_ms"}
	}
	if c.Evasion.BlockWaitMinMs > c.Evasion.BlockWaitMaxMs {
		return &ValidationError{Field: "evasion.block_wait_min_ms", Reason: "greater than block_wait_max_ms"}
	}
	if err := ValidateURL(c.BaseURL); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return &ValidationError{Field: "log_level", Reason: err.Error()}
	}
	return nil
}

// ResolveCredentials returns the configured pair, falling back to build-time defaults.
func (c *Config) ResolveCredentials() (Credentials, error) {
	email, password := c.Credentials.Email, c.Credentials.Password
	if email == "" {
		email = buildEmail
	}
	if password == "" {
		password = buildPassword
	}
	return NewCredentials(email, password)
}

// Masked returns a copy safe to print.
func (c *Config) Masked() *Config {
	cp := *c
	if cp.Credentials.Email != "" {
		cp.Credentials.Email = MaskEmail(cp.Credentials.Email)
	}
	if cp.Credentials.Password != "" {
		cp.Credentials.Password = "******"
	}
	return &cp
}

// CartURL is where the commitment date is read after the add.
func (c *Config) CartURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(c.CartPath, "/")
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.Timeouts.PageMs) * time.Millisecond
}

func (c *Config) ElementTimeout() time.Duration {
	return time.Duration(c.Timeouts.ElementMs) * time.Millisecond
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Locators parses one selector table, failing loudly on malformed config.
func (s SelectorConfig) Locators(specs []string, sku string) (LocatorList, error) {
	list, err := ParseLocators(specs, sku)
	if err != nil {
		return nil, fmt.Errorf("selector table: %w", err)
	}
	return list, nil
}

func getUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./delivery-probe-data"
	}
	return filepath.Join(home, ".delivery-probe")
}
