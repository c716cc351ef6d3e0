// Command consul-mutex runs a shell command while holding a distributed lock.
// If the lock is lost mid-run the child process is killed and the command
// exits non-zero; otherwise the exit code mirrors the child's.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/kinnalru/consul-mutex/consul"
	"github.com/kinnalru/consul-mutex/mutex"
)

type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.code)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var exit *exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "consul-mutex:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "consul-mutex --key KEY -- command [args...]",
		Short:        "Run a command under a Consul-backed distributed lock",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, args)
		},
	}
	flags := cmd.Flags()
	flags.String("key", "", "lock key path in the KV store")
	flags.String("value", "", "value published while holding the lock (default: hostname)")
	flags.String("addr", consul.DefaultAddress, "coordination service base URL")
	flags.Bool("verbose", false, "log lock lifecycle to stderr")
	_ = v.BindPFlags(flags)
	_ = v.BindEnv("key", "CONSUL_MUTEX_KEY")
	_ = v.BindEnv("value", "CONSUL_MUTEX_VALUE")
	_ = v.BindEnv("addr", "CONSUL_HTTP_ADDR")
	return cmd
}

func run(parent context.Context, v *viper.Viper, args []string) error {
	key := v.GetString("key")
	if key == "" {
		return errors.New("--key (or CONSUL_MUTEX_KEY) is required")
	}

	logger := pslog.NoopLogger()
	if v.GetBool("verbose") {
		logger = pslog.NewStructured(os.Stderr)
	}

	opts := []mutex.Option{
		mutex.WithAddress(v.GetString("addr")),
		mutex.WithLogger(logger),
	}
	if value := v.GetString("value"); value != "" {
		opts = append(opts, mutex.WithValue(value))
	}
	m, err := mutex.New(key, opts...)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = m.Synchronize(ctx, func(ctx context.Context) (any, error) {
		child := exec.CommandContext(ctx, args[0], args[1:]...)
		child.Stdin = os.Stdin
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		if err := child.Run(); err != nil {
			var exit *exec.ExitError
			if errors.As(err, &exit) {
				return nil, &exitCodeError{code: exit.ExitCode()}
			}
			return nil, err
		}
		return nil, nil
	})
	return err
}
