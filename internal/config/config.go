package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	shopspring "github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rezonia/xrechnung/internal/decimal"
)

// EnvPrefix is prepended to every environment key
const EnvPrefix = "XRECHNUNG"

// Config keys
const (
	KeyCurrency             = "currency"
	KeyDefaultTaxRate       = "default_tax_rate"
	KeyXMLValidation        = "xml_validation"
	KeyRequireTaxID         = "require_tax_id"
	KeyAllowNegativeAmounts = "allow_negative_amounts"
	KeyStrictCurrency       = "strict_currency"
	KeySyntax               = "syntax"
	KeyLineTolerance        = "line_tolerance"
	KeyTotalTolerance       = "total_tolerance"
)

// ErrInvalidSetting is returned when a resolved value is unusable
var ErrInvalidSetting = errors.New("invalid setting")

// Settings is an immutable snapshot of codec and validator settings.
// Validator and Codec copy it at construction.
type Settings struct {
	Currency             string
	DefaultTaxRate       decimal.TaxRate
	XMLValidation        bool
	RequireTaxID         bool
	AllowNegativeAmounts bool
	StrictCurrency       bool
	Syntax               string
	LineTolerance        shopspring.Decimal
	TotalTolerance       shopspring.Decimal
}

// Default returns the built-in settings
func Default() Settings {
	return Settings{
		Currency:       "EUR",
		DefaultTaxRate: decimal.MustTaxRate("19.00"),
		XMLValidation:  true,
		Syntax:         "ubl",
		LineTolerance:  shopspring.RequireFromString("0.01"),
		TotalTolerance: shopspring.RequireFromString("0.01"),
	}
}

// Option overrides a resolved setting. Options win over every other source.
type Option func(*loadOptions)

type loadOptions struct {
	file      string
	overrides []func(*Settings)
}

func override(fn func(*Settings)) Option {
	return func(o *loadOptions) { o.overrides = append(o.overrides, fn) }
}

// WithFile reads settings from path instead of searching for xrechnung.*
func WithFile(path string) Option {
	return func(o *loadOptions) { o.file = path }
}

// WithCurrency sets the expected document currency
func WithCurrency(code string) Option {
	return override(func(s *Settings) { s.Currency = code })
}

// WithDefaultTaxRate sets the rate used when a line omits one
func WithDefaultTaxRate(rate decimal.TaxRate) Option {
	return override(func(s *Settings) { s.DefaultTaxRate = rate })
}

// WithXMLValidation toggles validation before encode
func WithXMLValidation(enabled bool) Option {
	return override(func(s *Settings) { s.XMLValidation = enabled })
}

// WithRequireTaxID toggles the mandatory tax id rule
func WithRequireTaxID(required bool) Option {
	return override(func(s *Settings) { s.RequireTaxID = required })
}

// WithAllowNegativeAmounts toggles acceptance of negative amounts
func WithAllowNegativeAmounts(allowed bool) Option {
	return override(func(s *Settings) { s.AllowNegativeAmounts = allowed })
}

// WithStrictCurrency requires invoices to use the configured currency
func WithStrictCurrency(strict bool) Option {
	return override(func(s *Settings) { s.StrictCurrency = strict })
}

// WithSyntax sets the default encode syntax
func WithSyntax(name string) Option {
	return override(func(s *Settings) { s.Syntax = name })
}

// WithTolerances sets line and total tolerances
func WithTolerances(line, total shopspring.Decimal) Option {
	return override(func(s *Settings) {
		s.LineTolerance = line
		s.TotalTolerance = total
	})
}

// Load resolves settings. Precedence, highest first: options, environment
// (XRECHNUNG_*, including a .env file), config file, defaults.
func Load(opts ...Option) (Settings, error) {
	var lo loadOptions
	for _, opt := range opts {
		opt(&lo)
	}

	v, err := newViper(lo.file)
	if err != nil {
		return Settings{}, err
	}
	s, err := fromViper(v)
	if err != nil {
		return Settings{}, err
	}
	for _, fn := range lo.overrides {
		fn(&s)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MustLoad is like Load but panics on error
func MustLoad(opts ...Option) Settings {
	s, err := Load(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that the settings are usable
func (s Settings) Validate() error {
	if err := decimal.CheckCurrency(s.Currency); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSetting, KeyCurrency, err)
	}
	if s.LineTolerance.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidSetting, KeyLineTolerance)
	}
	if s.TotalTolerance.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidSetting, KeyTotalTolerance)
	}
	if s.Syntax == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidSetting, KeySyntax)
	}
	return nil
}

func newViper(file string) (*viper.Viper, error) {
	// .env never overrides variables already set in the process
	_ = godotenv.Load()

	d := Default()
	v := viper.New()
	v.SetDefault(KeyCurrency, d.Currency)
	v.SetDefault(KeyDefaultTaxRate, d.DefaultTaxRate.String())
	v.SetDefault(KeyXMLValidation, d.XMLValidation)
	v.SetDefault(KeyRequireTaxID, d.RequireTaxID)
	v.SetDefault(KeyAllowNegativeAmounts, d.AllowNegativeAmounts)
	v.SetDefault(KeyStrictCurrency, d.StrictCurrency)
	v.SetDefault(KeySyntax, d.Syntax)
	v.SetDefault(KeyLineTolerance, d.LineTolerance.String())
	v.SetDefault(KeyTotalTolerance, d.TotalTolerance.String())
	setAppDefaults(v)

	if file == "" {
		file = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("xrechnung")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v, nil
}

func fromViper(v *viper.Viper) (Settings, error) {
	rate, err := decimal.ParseTaxRate(v.GetString(KeyDefaultTaxRate))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %s: %w", ErrInvalidSetting, KeyDefaultTaxRate, err)
	}
	lineTol, err := shopspring.NewFromString(v.GetString(KeyLineTolerance))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %s: %w", ErrInvalidSetting, KeyLineTolerance, err)
	}
	totalTol, err := shopspring.NewFromString(v.GetString(KeyTotalTolerance))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %s: %w", ErrInvalidSetting, KeyTotalTolerance, err)
	}
	return Settings{
		Currency:             strings.ToUpper(v.GetString(KeyCurrency)),
		DefaultTaxRate:       rate,
		XMLValidation:        v.GetBool(KeyXMLValidation),
		RequireTaxID:         v.GetBool(KeyRequireTaxID),
		AllowNegativeAmounts: v.GetBool(KeyAllowNegativeAmounts),
		StrictCurrency:       v.GetBool(KeyStrictCurrency),
		Syntax:               strings.ToLower(v.GetString(KeySyntax)),
		LineTolerance:        lineTol,
		TotalTolerance:       totalTol,
	}, nil
}
