package config

import (
	"time"

	"github.com/spf13/viper"
)

// App keys
const (
	KeyAddress      = "address"
	KeyDatabaseDSN  = "database_dsn"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
	KeyReadTimeout  = "read_timeout"
	KeyWriteTimeout = "write_timeout"
)

// App holds settings of the server and CLI around the codec
type App struct {
	Address      string
	DatabaseDSN  string // postgres URL or key=value list, otherwise a sqlite path
	LogLevel     string
	LogFormat    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func setAppDefaults(v *viper.Viper) {
	v.SetDefault(KeyAddress, ":8080")
	v.SetDefault(KeyDatabaseDSN, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyReadTimeout, "30s")
	v.SetDefault(KeyWriteTimeout, "30s")
}

// LoadApp resolves application settings with the same sources as Load.
// An empty file searches for xrechnung.* in the working directory.
func LoadApp(file string) (App, error) {
	v, err := newViper(file)
	if err != nil {
		return App{}, err
	}
	return App{
		Address:      v.GetString(KeyAddress),
		DatabaseDSN:  v.GetString(KeyDatabaseDSN),
		LogLevel:     v.GetString(KeyLogLevel),
		LogFormat:    v.GetString(KeyLogFormat),
		ReadTimeout:  v.GetDuration(KeyReadTimeout),
		WriteTimeout: v.GetDuration(KeyWriteTimeout),
	}, nil
}
