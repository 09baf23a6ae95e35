// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/ghgate/pkg/auth"
	"github.com/stacklok/ghgate/pkg/github"
	"github.com/stacklok/ghgate/pkg/logger"
)

var (
	addr         string
	clientID     string
	clientSecret string
	secret       string
	userAgent    string
	users        []string
	team         string
	organization string
	credUser     string
	credPass     string
	maxAge       time.Duration
	autoLogin    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a demo server protected by the gate",
	Long: `Serve starts a small HTTP server with every route behind the authentication
gate. Unauthenticated requests receive 403; /login redirects to GitHub.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().StringVar(&clientID, "client-id", "", "GitHub OAuth application client ID")
	serveCmd.Flags().StringVar(&clientSecret, "client-secret", "", "GitHub OAuth application client secret")
	serveCmd.Flags().StringVar(&secret, "secret", "", "Cookie signing secret (random per process when empty)")
	serveCmd.Flags().StringVar(&userAgent, "ua", "", "User-Agent header for provider calls")
	serveCmd.Flags().StringSliceVar(&users, "users", nil, "Allow-listed GitHub logins")
	serveCmd.Flags().StringVar(&team, "team", "", "Required team (needs --organization)")
	serveCmd.Flags().StringVar(&organization, "organization", "", "Required organization")
	serveCmd.Flags().StringVar(&credUser, "credentials-user", "", "Basic auth user for privileged team lookups")
	serveCmd.Flags().StringVar(&credPass, "credentials-pass", "", "Basic auth password for privileged team lookups")
	serveCmd.Flags().DurationVar(&maxAge, "max-age", 0, "Session cookie max age (0 for a session cookie)")
	serveCmd.Flags().BoolVar(&autoLogin, "autologin", false, "Redirect unauthenticated requests to GitHub")

	// Secrets can come from GHGATE_CLIENT_ID etc. instead of flags.
	viper.SetEnvPrefix("ghgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, env := range []string{"client-id", "client-secret", "secret"} {
		if err := viper.BindPFlag(env, serveCmd.Flags().Lookup(env)); err != nil {
			serveCmd.PrintErrf("Error binding %s flag: %v\n", env, err)
		}
	}
}

func serve() error {
	cfg := &auth.Config{
		ClientID:     viper.GetString("client-id"),
		ClientSecret: viper.GetString("client-secret"),
		Secret:       viper.GetString("secret"),
		UserAgent:    userAgent,
		Users:        users,
		Team:         team,
		Organization: organization,
		CookieMaxAge: maxAge,
		AutoLogin:    autoLogin,
	}
	if credUser != "" || credPass != "" {
		cfg.Credentials = &github.Credentials{User: credUser, Pass: credPass}
	}

	gate, err := auth.NewGate(cfg)
	if err != nil {
		return fmt.Errorf("failed to create gate: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/login", gate.LoginHandler())

	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware())
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			result, ok := auth.ResultFromContext(r.Context())
			if !ok || !result.Authenticated {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			fmt.Fprintf(w, "hello, %s\n", result.Login)
		})
	})

	logger.Infof("Listening on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv.ListenAndServe()
}
