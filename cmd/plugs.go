package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/BDNK1/plugrun/runtime"
)

// valueFlags are the ways a command receives field values.
type valueFlags struct {
	file string
	set  map[string]string
}

func (v *valueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&v.file, "values", "", "YAML file with field values")
	cmd.Flags().StringToStringVar(&v.set, "set", nil, "Field values as key=value (overrides --values)")
}

func (v *valueFlags) load() (map[string]any, error) {
	values := map[string]any{}
	if v.file != "" {
		data, err := os.ReadFile(v.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read values: %w", err)
		}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("failed to parse values from %q: %w", v.file, err)
		}
	}
	for k, val := range v.set {
		values[k] = parseScalar(val)
	}
	return values, nil
}

// parseScalar reads a --set value as a YAML scalar so numbers and booleans
// reach the rules typed. Anything that does not decode to a scalar stays a
// string.
func parseScalar(raw string) any {
	if raw == "" {
		return raw
	}
	var decoded any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw
	}
	switch decoded.(type) {
	case nil, map[string]any, map[any]any, []any:
		return raw
	}
	return decoded
}

func lookupPlug(env *environment, providerID, plugID string) (*runtime.Plug, error) {
	plug, ok := env.app.Registry.Lookup(providerID, plugID)
	if !ok {
		return nil, fmt.Errorf("plug %s.%s is not registered", providerID, plugID)
	}
	return plug, nil
}

// withEnvironment runs fn with a started environment and stops it after.
func withEnvironment(ctx context.Context, opts *rootOptions, fn func(env *environment) error) error {
	env, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer env.close(context.WithoutCancel(ctx))
	return fn(env)
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered plugs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd.Context(), opts, func(env *environment) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PLUG\tTITLE\tRUN EVERY\tTOTAL RUNS\tFIELDS")
				for _, p := range env.app.Registry.Plugs() {
					def := p.Definition
					names := make([]string, 0, len(def.Fields()))
					for _, f := range def.Fields() {
						names = append(names, f.Name())
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						p.Key(), def.Title(), def.RunEvery(), budget(def.TotalRuns()), strings.Join(names, ","))
				}
				return w.Flush()
			})
		},
	}
}

func budget(total int) string {
	if total == 0 {
		return "unlimited"
	}
	return fmt.Sprint(total)
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var vf valueFlags

	cmd := &cobra.Command{
		Use:   "validate <provider> <plug>",
		Short: "Validate field values against a plug's rules",
		Example: `  plugrun validate webhook autoPing --values autoping.yaml
  plugrun validate webhook heartbeat --set webhookUrl=https://hooks.example.com`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := vf.load()
			if err != nil {
				return err
			}
			return withEnvironment(cmd.Context(), opts, func(env *environment) error {
				plug, err := lookupPlug(env, args[0], args[1])
				if err != nil {
					return err
				}
				res := plug.Definition.Validate(values)
				if res.IsValid() {
					fmt.Fprintln(cmd.OutOrStdout(), "valid")
					return nil
				}
				printValidationErrors(cmd.OutOrStdout(), res)
				return fmt.Errorf("%d field(s) failed validation", len(res.Errors))
			})
		},
	}
	vf.register(cmd)
	return cmd
}

func printValidationErrors(w io.Writer, res runtime.ValidationResult) {
	fields := make([]string, 0, len(res.Errors))
	for f := range res.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, msg := range res.Errors[f] {
			fmt.Fprintf(w, "%s: %s\n", f, msg)
		}
	}
}

func newEligibleCmd(opts *rootOptions) *cobra.Command {
	var (
		lastRun string
		count   int
		at      string
	)

	cmd := &cobra.Command{
		Use:     "eligible <provider> <plug>",
		Short:   "Check whether a plug may run given its history",
		Example: `  plugrun eligible webhook autoPing --last-run 2024-05-01T10:00:00Z --count 3`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var last *time.Time
			if lastRun != "" {
				t, err := time.Parse(time.RFC3339, lastRun)
				if err != nil {
					return fmt.Errorf("invalid --last-run: %w", err)
				}
				last = &t
			}
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = t
			}

			return withEnvironment(cmd.Context(), opts, func(env *environment) error {
				plug, err := lookupPlug(env, args[0], args[1])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if runtime.ShouldExecuteAt(plug.Definition, last, count, now) {
					fmt.Fprintln(out, "eligible")
					return nil
				}
				if total := plug.Definition.TotalRuns(); total > 0 && count >= total {
					fmt.Fprintf(out, "not eligible: run budget of %d exhausted\n", total)
					return nil
				}
				fmt.Fprintf(out, "not eligible until %s\n", runtime.NextEligible(plug.Definition, *last).Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&lastRun, "last-run", "", "Time of the last successful run (RFC3339); omit if never run")
	cmd.Flags().IntVar(&count, "count", 0, "Number of successful runs so far")
	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this time (RFC3339) instead of now")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		vf             valueFlags
		integration    string
		accessToken    string
		postID         string
		skipValidation bool
	)

	cmd := &cobra.Command{
		Use:   "run <provider> <plug>",
		Short: "Validate and invoke a plug once",
		Example: `  plugrun run webhook heartbeat --set webhookUrl=https://hooks.example.com --set note=hi
  plugrun run webhook autoPing --values autoping.yaml --integration acme --token $TOKEN --post 42`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := vf.load()
			if err != nil {
				return err
			}
			return withEnvironment(cmd.Context(), opts, func(env *environment) error {
				plug, err := lookupPlug(env, args[0], args[1])
				if err != nil {
					return err
				}

				if !skipValidation {
					if res := plug.Definition.Validate(values); !res.IsValid() {
						printValidationErrors(cmd.ErrOrStderr(), res)
						return fmt.Errorf("%d field(s) failed validation", len(res.Errors))
					}
				}

				exec := runtime.NewExecution(integration, accessToken, time.Now())
				if postID != "" {
					exec = exec.WithPost(postID)
				}

				res := env.app.Executor.Run(cmd.Context(), plug, exec, values)

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("plug %s failed: %s", plug.Key(), res.Error)
				}
				return nil
			})
		},
	}

	vf.register(cmd)
	cmd.Flags().StringVar(&integration, "integration", "cli", "Integration identifier for the execution")
	cmd.Flags().StringVar(&accessToken, "token", "", "Access token for the execution")
	cmd.Flags().StringVar(&postID, "post", "", "Post identifier for the execution")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Invoke even when field values fail validation")
	return cmd
}
