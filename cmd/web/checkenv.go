package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GearConnect-Official/gearconnect-landing/internal/backend"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/config"
)

const pingTimeout = 5 * time.Second

type envVar struct {
	Key      string
	Required bool
	Secret   bool
	Purpose  string
}

var checkedEnv = []envVar{
	{Key: "BACKEND_URL", Required: true, Purpose: "GearConnect backend base URL"},
	{Key: "AUTH_PROVIDER", Purpose: "clerk or firebase"},
	{Key: "CLERK_PUBLISHABLE_KEY", Purpose: "Clerk frontend key, also derives the JWKS URL"},
	{Key: "CLERK_SECRET_KEY", Secret: true, Purpose: "mints backend tokens through the Clerk API"},
	{Key: "FIREBASE_PROJECT_ID", Purpose: "required when AUTH_PROVIDER=firebase"},
	{Key: "SUPPORT_USER_ID", Purpose: "backend user that receives support conversations"},
	{Key: "PLAYSTORE_STATS_URL", Purpose: "live Play Store figures; defaults are served without it"},
	{Key: "WEB_ENV", Purpose: "local or prod"},
}

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
)

func newCheckEnvCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-env",
		Short: "Check configuration and backend reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			values, err := config.EnvironmentValues(config.WithEnvFile(opts.envFile))
			if err != nil {
				return err
			}
			return runCheckEnv(cmd.Context(), cmd.OutOrStdout(), values, nil)
		},
	}
}

// runCheckEnv reports each known variable, validates the configuration and
// pings the backend. It fails when a required variable is missing, the
// configuration is invalid or the backend is unreachable.
func runCheckEnv(ctx context.Context, w io.Writer, values map[string]string, httpClient backend.HTTPClient) error {
	var problems []string

	fmt.Fprintln(w, "Environment")
	for _, v := range checkedEnv {
		value := strings.TrimSpace(values[v.Key])
		switch {
		case value != "":
			shown := value
			if v.Secret || config.IsSecretReference(value) {
				shown = "(set)"
			}
			fmt.Fprintf(w, "  %s %-22s %s\n", okMark("✓"), v.Key, shown)
		case v.Required:
			fmt.Fprintf(w, "  %s %-22s missing: %s\n", failMark("✗"), v.Key, v.Purpose)
			problems = append(problems, v.Key+" is missing")
		default:
			fmt.Fprintf(w, "  %s %-22s not set: %s\n", warnMark("!"), v.Key, v.Purpose)
		}
	}

	cfg, err := config.Load(ctx,
		config.WithEnvFile(""),
		config.WithoutSystemEnv(),
		config.WithEnvMap(values),
		config.WithSecretResolver(config.SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return ref, nil
		})),
	)
	fmt.Fprintln(w, "Configuration")
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			fmt.Fprintf(w, "  %s invalid fields: %s\n", failMark("✗"), strings.Join(invalid.Fields(), ", "))
		} else {
			fmt.Fprintf(w, "  %s %v\n", failMark("✗"), err)
		}
		problems = append(problems, "configuration is invalid")
		return checkResult(w, problems)
	}
	fmt.Fprintf(w, "  %s env=%s provider=%s dev=%t\n", okMark("✓"), cfg.Environment, cfg.Auth.Provider, cfg.DevMode)

	fmt.Fprintln(w, "Backend")
	var clientOpts []backend.Option
	if httpClient != nil {
		clientOpts = append(clientOpts, backend.WithHTTPClient(httpClient))
	}
	client, err := backend.NewClient(cfg.Backend.URL, clientOpts...)
	if err != nil {
		fmt.Fprintf(w, "  %s %v\n", failMark("✗"), err)
		problems = append(problems, "backend url is invalid")
		return checkResult(w, problems)
	}
	if status, err := pingBackend(ctx, client); err != nil {
		fmt.Fprintf(w, "  %s %s unreachable: %v\n", failMark("✗"), cfg.Backend.URL, err)
		problems = append(problems, "backend is unreachable")
	} else {
		fmt.Fprintf(w, "  %s %s answered %d\n", okMark("✓"), cfg.Backend.URL, status)
	}
	return checkResult(w, problems)
}

// pingBackend treats any HTTP answer as reachable.
func pingBackend(ctx context.Context, client *backend.Client) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	resp, err := client.Do(ctx, backend.Request{Op: "check_env.ping", Method: http.MethodGet, Path: "/"})
	var statusErr *backend.StatusError
	switch {
	case err == nil:
		return resp.Status, nil
	case errors.As(err, &statusErr):
		return statusErr.Status, nil
	default:
		return 0, err
	}
}

func checkResult(w io.Writer, problems []string) error {
	if len(problems) == 0 {
		fmt.Fprintln(w, okMark("All checks passed"))
		return nil
	}
	return fmt.Errorf("%d check(s) failed: %s", len(problems), strings.Join(problems, "; "))
}
