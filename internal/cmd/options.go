package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// parseOptions loads options from flags, the config file, and environment
// variables with the envPrefix. Flags take precedence over environment
// variables, which take precedence over the config file.
func parseOptions(cmd *cobra.Command, options interface{}, envPrefix string) error {
	v := viper.New()

	for flagName, key := range serverFlagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	v.SetConfigName("config")
	v.AddConfigPath("/etc/keyfob")
	v.AddConfigPath("$HOME/.keyfob")
	v.AddConfigPath(".")

	if configFile := cmd.Flags().Lookup("config-file").Value.String(); configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var errConfigFileNotFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &errConfigFileNotFound) {
		return err
	}

	return v.Unmarshal(options)
}

// serverFlagKeys maps flag names to config file keys.
var serverFlagKeys = map[string]string{
	"sessions-max-active":     "sessions.maxActive",
	"sessions-ttl":            "sessions.ttl",
	"access-keys-max-active":  "accessKeys.maxActive",
	"access-keys-default-ttl": "accessKeys.defaultTTL",
	"sweep-interval":          "sweep.interval",
	"sweep-retention":         "sweep.retention",
	"addr-metrics":            "addr.metrics",
	"db-file":                 "db.file",
	"db-connection-string":    "db.connectionString",
}

// canonicalPath expands environment variables and the user home directory in
// path, and makes it absolute.
func canonicalPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = home + strings.TrimPrefix(path, "~")
	}
	return filepath.Abs(path)
}
