package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptToken asks for the provider token on the terminal when none was
// configured. It does nothing when a token is set, the provider does not use
// one, or stdin is not a terminal.
func PromptToken(cfg *Config, out io.Writer) error {
	if cfg.DNS.Token != "" || !cfg.NeedsToken() {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprintf(out, "Enter %s API token: ", cfg.DNS.Provider)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read token from terminal: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return errors.New("empty token")
	}
	cfg.DNS.Token = token
	return nil
}
