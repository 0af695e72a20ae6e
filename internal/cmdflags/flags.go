package cmdflags

import (
	"github.com/andrebq/latchkey/auth"
	"github.com/urfave/cli/v2"
)

func Keyring(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = "latchkey.db"
	}
	return &cli.StringFlag{
		Name:        "db",
		Aliases:     []string{"keyring", "k"},
		Usage:       "Path to the keyring database",
		EnvVars:     []string{"LATCHKEY_DB"},
		Destination: out,
		Value:       *out,
	}
}

func RememberKeyEnvVar(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = auth.RememberKeyEnvVar
	}
	return &cli.StringFlag{
		Name:        "remember-key-envvar-name",
		Usage:       "Name of the environment variable that holds the remember-me key (base64, 32 bytes). The key itself should not be passed as an argument",
		Value:       *out,
		Destination: out,
	}
}

func LogLevel(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = "info"
	}
	return &cli.StringFlag{
		Name:        "log-level",
		Usage:       "Minimum level of log messages (trace, debug, info, warn, error)",
		EnvVars:     []string{"LATCHKEY_LOG_LEVEL"},
		Value:       *out,
		Destination: out,
	}
}

func LogFormat(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = "json"
	}
	return &cli.StringFlag{
		Name:        "log-format",
		Usage:       "Either json or console",
		EnvVars:     []string{"LATCHKEY_LOG_FORMAT"},
		Value:       *out,
		Destination: out,
	}
}
