package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/trezcool/schoolsite/core/auth"
)

type config struct {
	AppName          string
	APIURL           string
	StateFile        string
	Mismatch         auth.MismatchPolicy
	StrictSingletons bool
}

// loadConfig reads CONSOLE_* environment variables.
func loadConfig() config {
	v := viper.New()
	v.SetEnvPrefix("console")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	stateDir, err := os.UserConfigDir()
	if err != nil {
		stateDir = "."
	}
	v.SetDefault("appName", "Sekolah")
	v.SetDefault("api_url", "http://localhost:8000")
	v.SetDefault("state_file", filepath.Join(stateDir, "sekolah", "console.json"))
	v.SetDefault("mismatch", "login")
	v.SetDefault("strict_singletons", false)

	conf := config{
		AppName:          v.GetString("appName"),
		APIURL:           v.GetString("api_url"),
		StateFile:        v.GetString("state_file"),
		StrictSingletons: v.GetBool("strict_singletons"),
	}
	if strings.EqualFold(v.GetString("mismatch"), "home") {
		conf.Mismatch = auth.MismatchHome
	}
	return conf
}
