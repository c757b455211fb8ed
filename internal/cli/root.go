// Package cli implements the chatwatch command line tool.
package cli

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	serverKey  = "server"
	tokenKey   = "token"
	secretKey  = "jwt_secret"
	verboseKey = "verbose"
)

type app struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCommand builds the chatwatch command tree. Settings come from flags,
// CHATWATCH_* environment variables and an optional config file, in that order.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "chatwatch",
		Short:         "Watch and post to live webinar rooms",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("server", "http://localhost:8080", "base URL of the webinar backend")
	flags.String("token", "", "bearer token sent with requests")
	flags.Bool("verbose", false, "log connection events to stderr")
	_ = a.v.BindPFlag(serverKey, flags.Lookup("server"))
	_ = a.v.BindPFlag(tokenKey, flags.Lookup("token"))
	_ = a.v.BindPFlag(verboseKey, flags.Lookup("verbose"))

	a.v.SetEnvPrefix("chatwatch")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(a.tailCommand(), a.sendCommand(), a.tokenCommand())
	return root
}

func (a *app) loadConfig() error {
	if a.cfgFile == "" {
		return nil
	}
	a.v.SetConfigFile(a.cfgFile)
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func (a *app) server() string {
	return strings.TrimRight(a.v.GetString(serverKey), "/")
}

func (a *app) header() http.Header {
	h := http.Header{}
	if token := a.v.GetString(tokenKey); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func (a *app) logger() *zap.Logger {
	if !a.v.GetBool(verboseKey) {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
