package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	shopspring "github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/xrechnung/internal/config"
	"github.com/rezonia/xrechnung/internal/decimal"
)

// isolate runs the test in an empty directory so no stray config is found
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XRECHNUNG_CONFIG", "")
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	s, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "EUR", s.Currency)
	assert.Equal(t, "19.00", s.DefaultTaxRate.String())
	assert.True(t, s.XMLValidation)
	assert.False(t, s.RequireTaxID)
	assert.False(t, s.AllowNegativeAmounts)
	assert.False(t, s.StrictCurrency)
	assert.Equal(t, "ubl", s.Syntax)
	assert.True(t, s.LineTolerance.Equal(shopspring.RequireFromString("0.01")))
	assert.True(t, s.TotalTolerance.Equal(shopspring.RequireFromString("0.01")))
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "xrechnung.toml"), `
currency = "USD"
require_tax_id = true
syntax = "cii"
`)

	t.Run("file over defaults", func(t *testing.T) {
		s, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, "USD", s.Currency)
		assert.True(t, s.RequireTaxID)
		assert.Equal(t, "cii", s.Syntax)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("XRECHNUNG_CURRENCY", "CHF")
		t.Setenv("XRECHNUNG_REQUIRE_TAX_ID", "false")

		s, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, "CHF", s.Currency)
		assert.False(t, s.RequireTaxID)
		assert.Equal(t, "cii", s.Syntax)
	})

	t.Run("options over env", func(t *testing.T) {
		t.Setenv("XRECHNUNG_CURRENCY", "CHF")

		s, err := config.Load(config.WithCurrency("GBP"), config.WithSyntax("ubl"))
		require.NoError(t, err)
		assert.Equal(t, "GBP", s.Currency)
		assert.Equal(t, "ubl", s.Syntax)
	})
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "XRECHNUNG_ALLOW_NEGATIVE_AMOUNTS=true\n")
	t.Cleanup(func() { os.Unsetenv("XRECHNUNG_ALLOW_NEGATIVE_AMOUNTS") })

	s, err := config.Load()
	require.NoError(t, err)
	assert.True(t, s.AllowNegativeAmounts)
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "xml_validation: false\ndefault_tax_rate: \"7.00\"\n")

	s, err := config.Load(config.WithFile(path))
	require.NoError(t, err)
	assert.False(t, s.XMLValidation)
	assert.Equal(t, "7.00", s.DefaultTaxRate.String())

	t.Setenv("XRECHNUNG_CONFIG", path)
	s, err = config.Load()
	require.NoError(t, err)
	assert.False(t, s.XMLValidation)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown currency", "XRECHNUNG_CURRENCY", "XYZ"},
		{"tax rate out of range", "XRECHNUNG_DEFAULT_TAX_RATE", "101"},
		{"bad tolerance", "XRECHNUNG_LINE_TOLERANCE", "abc"},
		{"negative tolerance", "XRECHNUNG_TOTAL_TOLERANCE", "-0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.val)

			_, err := config.Load()
			assert.ErrorIs(t, err, config.ErrInvalidSetting)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := config.Load(config.WithFile(filepath.Join(dir, "nope.toml")))
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	isolate(t)

	s, err := config.Load(
		config.WithXMLValidation(false),
		config.WithRequireTaxID(true),
		config.WithAllowNegativeAmounts(true),
		config.WithStrictCurrency(true),
		config.WithDefaultTaxRate(decimal.MustTaxRate("7")),
		config.WithTolerances(shopspring.RequireFromString("0.05"), shopspring.Zero),
	)
	require.NoError(t, err)

	assert.False(t, s.XMLValidation)
	assert.True(t, s.RequireTaxID)
	assert.True(t, s.AllowNegativeAmounts)
	assert.True(t, s.StrictCurrency)
	assert.Equal(t, "7.00", s.DefaultTaxRate.String())
	assert.Equal(t, "0.05", s.LineTolerance.String())
	assert.True(t, s.TotalTolerance.IsZero())
}

func TestLoadApp(t *testing.T) {
	isolate(t)
	t.Setenv("XRECHNUNG_ADDRESS", ":9090")
	t.Setenv("XRECHNUNG_READ_TIMEOUT", "5s")

	app, err := config.LoadApp("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", app.Address)
	assert.Equal(t, 5*time.Second, app.ReadTimeout)
	assert.Equal(t, 30*time.Second, app.WriteTimeout)
	assert.Equal(t, "info", app.LogLevel)
	assert.Equal(t, "console", app.LogFormat)
}
