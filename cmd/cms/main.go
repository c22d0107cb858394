package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"cms-go/internal/app"
	"cms-go/internal/cms"
	"cms-go/internal/config"
	"cms-go/internal/encryption"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and overlays the environment toggles.
func loadConfig() (*config.Config, config.Env, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, config.Env{}, fmt.Errorf("getting default paths: %w", err)
	}

	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, config.Env{}, fmt.Errorf("reading config: %w", err)
	}

	env := config.LoadOSEnv()
	cfg.Apply(env)
	return cfg, env, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(ctx context.Context, command string) (*app.App, error) {
	cfg, env, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, command, app.WithPassphrase(passphraseSource(env)))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// passphraseSource prefers CMS_PASSPHRASE and falls back to prompting.
func passphraseSource(env config.Env) func() (string, error) {
	return func() (string, error) {
		if env.Passphrase != "" {
			return env.Passphrase, nil
		}
		return promptPassphrase("Passphrase: ")
	}
}

func promptPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt for a passphrase; set %s", config.EnvPassphrase)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "cms",
	Short:        "Content management backend",
	SilenceUsage: true,
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		gin.SetMode(gin.ReleaseMode)
		cfg := a.Config()
		srv := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.Router(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.Logger().Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			ticker := time.NewTicker(time.Duration(cfg.RateLimit.WindowSeconds) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := a.Limiter().Sweep(); n > 0 {
						a.Logger().Debug("rate limit windows swept", "count", n)
					}
				}
			}
		})

		if err := g.Wait(); err != nil {
			a.Fail()
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get default paths: %w", err)
		}

		cfg := paths.NewConfig()
		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Content Root: %s\n", cfg.Sandbox.Root)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		backend, err := cfg.ResolveBackend()
		if err != nil {
			backend = "invalid: " + err.Error()
		}

		fmt.Printf("Environment:  %s\n", cfg.Environment)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Listen Addr:  %s\n", cfg.Server.ListenAddr)
		fmt.Printf("Store:        %s (resolved: %s)\n", cfg.Store.Type, backend)
		fmt.Printf("Encryption:   %s\n", cfg.Encryption.Type)
		fmt.Printf("Rate Limit:   %d per %ds\n", cfg.RateLimit.Limit, cfg.RateLimit.WindowSeconds)
		fmt.Printf("Content Root: %s (%s)\n", cfg.Sandbox.Root, cfg.Sandbox.Extension)
		fmt.Printf("Destructive:  %t\n", cfg.Sandbox.AllowDestructive)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to seal stored values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, env, err := loadConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc == nil {
			return fmt.Errorf("encryption type is %q; set [encryption] type = \"age\" first", cfg.Encryption.Type)
		}

		passphrase := env.Passphrase
		if passphrase == "" {
			if passphrase, err = promptPassphrase("New passphrase: "); err != nil {
				return err
			}
			confirm, err := promptPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return errors.New("passphrases do not match")
			}
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// kv command
var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Inspect and administer stored keys",
}

var kvGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the value stored under KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "kv get")
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.Store().Get(cmd.Context(), args[0])
		if errors.Is(err, cms.ErrNotFound) {
			a.Fail()
			return fmt.Errorf("key %q not found", args[0])
		}
		if err != nil {
			a.Fail()
			return err
		}
		fmt.Println(string(v))
		return nil
	},
}

var kvSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Store VALUE under KEY",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "kv set")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store().Set(cmd.Context(), args[0], []byte(args[1])); err != nil {
			a.Fail()
			return err
		}
		return nil
	},
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Remove KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "kv delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store().Delete(cmd.Context(), args[0]); err != nil {
			a.Fail()
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// content command
var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Work with content files",
}

var contentCheckCmd = &cobra.Command{
	Use:   "check PATH",
	Short: "Validate PATH against the content sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")

		a, err := newApp(cmd.Context(), "content check")
		if err != nil {
			return err
		}
		defer a.Close()

		resolved, err := a.CheckPath(args[0], mode)
		if err != nil {
			a.Fail()
			return err
		}
		fmt.Println(resolved)
		return nil
	},
}

var contentListCmd = &cobra.Command{
	Use:   "list [DIR]",
	Short: "List content files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}

		a, err := newApp(cmd.Context(), "content list")
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := a.Files().List(dir)
		if err != nil {
			a.Fail()
			return err
		}
		if len(paths) == 0 {
			fmt.Println("No content files found.")
			return nil
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	keysCmd.AddCommand(keysInitCmd)
	rootCmd.AddCommand(keysCmd)

	kvCmd.AddCommand(kvGetCmd)
	kvCmd.AddCommand(kvSetCmd)
	kvCmd.AddCommand(kvDeleteCmd)
	rootCmd.AddCommand(kvCmd)

	contentCheckCmd.Flags().StringP("mode", "m", "read", "Validation mode: read, write, create or dir")
	contentCmd.AddCommand(contentCheckCmd)
	contentCmd.AddCommand(contentListCmd)
	rootCmd.AddCommand(contentCmd)
}
