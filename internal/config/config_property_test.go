//go:build property

package config

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

func TestConfigurationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("port range decides validity", prop.ForAll(
		func(port int) bool {
			err := validateServerConfig(&ServerConfig{Port: port, Host: "localhost"})
			return (err == nil) == (port >= 0 && port <= 65535)
		},
		gen.IntRange(-1000, 70000),
	))

	properties.Property("path tokens expand everywhere", prop.ForAll(
		func(source, build string) bool {
			if source == build {
				return true
			}
			v := viper.New()
			v.Set("paths.source", source)
			v.Set("paths.build", build)

			cfg, err := LoadFrom(v)
			if err != nil {
				return false
			}

			for _, task := range cfg.Build.Tasks {
				for _, in := range task.Inputs {
					if containsToken(in) {
						return false
					}
				}
				if containsToken(task.Output) || containsToken(task.Base) {
					return false
				}
			}
			for _, b := range cfg.Watch.Bindings {
				if containsToken(b.Pattern) {
					return false
				}
			}
			return true
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("traversal is always rejected", prop.ForAll(
		func(name string) bool {
			return validatePath("../"+name) != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func containsToken(s string) bool {
	return strings.Contains(s, SourceToken) || strings.Contains(s, BuildToken)
}
