package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bhascraper/pkg/auth"
	"bhascraper/pkg/bha"
	"bhascraper/pkg/config"
	"bhascraper/pkg/logger"
	"bhascraper/pkg/token"
	"bhascraper/pkg/ui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Token command flags
	storeToken  bool
	showToken   bool
	verifyToken bool
)

// tokenCmd captures a bearer token
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Capture a bearer token from the results page",
	Long: `Open the public results page in a headless browser and capture the bearer
token its scripts send to the API.

The token is printed masked unless --show is given. With --store it is kept
in the configured token store so later fetch runs can skip the browser while
it is younger than token.max_age.

Token stores:
  none     nothing is persisted (default)
  keyring  the system keychain
  file     an encrypted file in the data directory
  auto     keychain when available, otherwise the encrypted file

A token can also be supplied through the BHASCRAPER_TOKEN environment variable.`,
	Example: `  # Capture and print a masked token
  bhascraper token

  # Capture and keep it in the keychain
  bhascraper token --store --token-store keyring

  # Paste a token copied from the browser
  bhascraper token set --token-store file`,
	Args: cobra.NoArgs,
	RunE: runTokenCapture,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a token copied from the browser",
	Long: `Read a bearer token from the terminal (input is hidden) or from stdin and save
it to the configured token store. The value may include the "Bearer " prefix.
Use 'bhascraper token guide' to see where to find it.`,
	Args: cobra.NoArgs,
	RunE: runTokenSet,
}

var tokenStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored token",
	Args:  cobra.NoArgs,
	RunE:  runTokenStatus,
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete stored tokens",
	Args:  cobra.NoArgs,
	RunE:  runTokenClear,
}

var tokenGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Show how to copy a token by hand",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(tokenFlags())
		if err != nil {
			return err
		}
		auth.WriteTokenGuide(cmd.OutOrStdout(), cfg.API.TokenURL, cfg.API.APIDomain)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd, tokenStatusCmd, tokenClearCmd, tokenGuideCmd)

	tokenCmd.PersistentFlags().StringVar(&tokenStore, "token-store", "", "token persistence: none, keyring, file or auto")
	tokenCmd.Flags().BoolVar(&storeToken, "store", false, "save the captured token")
	tokenCmd.Flags().BoolVar(&showToken, "show", false, "print the full token")
	tokenCmd.Flags().BoolVar(&showBrowser, "show-browser", false, "run the browser with a visible window")
	tokenSetCmd.Flags().BoolVar(&verifyToken, "verify", true, "check the token against the API before saving")
}

func tokenFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if tokenStore != "" {
		flags["token-store"] = tokenStore
	}
	if showBrowser {
		flags["headless"] = false
	}
	return flags
}

func openTokenStore(cfg *config.Config, log logger.Logger) (*auth.Manager, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(cfg.Token.Store, dataDir, cfg.Token.MaxAge, log)
}

func runTokenCapture(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(tokenFlags())
	if err != nil {
		return err
	}
	if storeToken && strings.EqualFold(cfg.Token.Store, "none") {
		return errors.New("token store is \"none\": pass --token-store or set token.store to persist tokens")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	acquirer := token.NewAcquirer(token.NewChromeBrowser(cfg), log)
	acquirer.OnTransition = func(from, to token.State) {
		if !ui.Quiet {
			fmt.Fprintf(ui.Out, "%s %s\n", ui.Dim("→"), to)
		}
	}

	ui.PrintInfo("Capturing from", cfg.API.TokenURL)
	tok, err := acquirer.Acquire(ctx, token.OptionsFromConfig(cfg))
	if err != nil {
		ui.PrintWarning("Capture failed. See 'bhascraper token guide' to copy a token by hand")
		return err
	}

	printToken(cmd.OutOrStdout(), tok, showToken)

	if storeToken {
		store, err := openTokenStore(cfg, log)
		if err != nil {
			return err
		}
		if err := store.Save(tok); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
		ui.PrintSuccess("Token stored (" + strings.Join(store.Stores(), ", ") + ")")
	}
	return nil
}

func runTokenSet(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(tokenFlags())
	if err != nil {
		return err
	}
	if strings.EqualFold(cfg.Token.Store, "none") {
		return errors.New("token store is \"none\": pass --token-store or set token.store")
	}

	fmt.Fprint(ui.Out, "Bearer token (input hidden): ")
	raw, err := readSecret(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	value, err := parseTokenInput(raw)
	if err != nil {
		return err
	}

	tok := token.BearerToken{
		Value:       value,
		CapturedAt:  time.Now().UTC(),
		DomainScope: cfg.API.APIDomain,
	}

	if verifyToken {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Retry.RequestTimeout*time.Duration(cfg.Retry.MaxRetries+1))
		defer cancel()
		if err := checkToken(ctx, bha.NewClient(cfg, log), tok); err != nil {
			return err
		}
		ui.PrintSuccess("Token accepted by the API")
	}

	store, err := openTokenStore(cfg, log)
	if err != nil {
		return err
	}
	if err := store.Save(tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	ui.PrintSuccess("Token stored: " + tok.Masked())
	return nil
}

func runTokenStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(tokenFlags())
	if err != nil {
		return err
	}
	store, err := openTokenStore(cfg, log)
	if err != nil {
		return err
	}

	ui.PrintInfo("Stores", strings.Join(store.Stores(), ", "))
	tok, err := store.Load(cfg.API.APIDomain)
	if errors.Is(err, auth.ErrTokenNotFound) {
		ui.PrintWarning("No usable token stored for " + cfg.API.APIDomain)
		return nil
	}
	if err != nil {
		return err
	}

	ui.PrintInfo("Domain", tok.DomainScope)
	ui.PrintInfo("Token", tok.Masked())
	ui.PrintInfo("Age", tok.Age(time.Now()).Round(time.Second).String())
	ui.PrintInfo("Expires from store in", (cfg.Token.MaxAge - tok.Age(time.Now())).Round(time.Second).String())
	return nil
}

func runTokenClear(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(tokenFlags())
	if err != nil {
		return err
	}
	store, err := openTokenStore(cfg, log)
	if err != nil {
		return err
	}
	if err := store.Delete(cfg.API.APIDomain); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	ui.PrintSuccess("Stored tokens cleared for " + cfg.API.APIDomain)
	return nil
}

// checkToken makes one uncached request with tok
func checkToken(ctx context.Context, f *bha.Client, tok token.BearerToken) error {
	req := bha.RacecoursesRequest()
	req.UseCache = false
	if _, err := f.Fetch(ctx, req, tok); err != nil {
		return fmt.Errorf("token check failed: %w", err)
	}
	return nil
}

func printToken(w io.Writer, tok token.BearerToken, full bool) {
	value := tok.Masked()
	if full {
		value = tok.Value
	}
	fmt.Fprintf(w, "%s\n", value)
	ui.PrintInfo("Domain", tok.DomainScope)
	ui.PrintInfo("Captured", tok.CapturedAt.Format(time.RFC3339))
}

// parseTokenInput accepts a bare token, "Bearer <token>" or a copied
// "Authorization: Bearer <token>" header line
func parseTokenInput(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if name, rest, ok := strings.Cut(s, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "authorization") {
		s = strings.TrimSpace(rest)
	}
	if v, ok := token.ParseBearer(s); ok {
		return v, nil
	}
	if s == "" {
		return "", errors.New("empty token")
	}
	if strings.ContainsAny(s, " \t") {
		return "", errors.New("token must be a single value")
	}
	return s, nil
}

// readSecret reads one line, without echo when f is a terminal
func readSecret(f *os.File) (string, error) {
	if term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(ui.Out)
		if err == nil {
			return string(secret), nil
		}
	}

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
