// ABOUTME: Interactive config writer for vito-gateway init
// ABOUTME: Prompts for credentials and writes a YAML config that references env vars for secrets

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/vito-gateway/internal/config"
)

// initAnswers are the values gathered by runInit.
type initAnswers struct {
	Creator         string
	Admins          []string
	Homeserver      string
	UserID          string
	Username        string
	Encryption      bool
	OpenRouterModel string
	StatusAddr      string
	LogLevel        string
}

func runInit() error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println("    Interactive Setup")
	fmt.Println("    -----------------")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	outputFile := prompt(reader, "Config file path", config.Path())

	if _, err := os.Stat(outputFile); err == nil {
		yellow.Printf("    Config already exists at %s\n", outputFile)
		if !yes(prompt(reader, "Overwrite?", "no")) {
			fmt.Println("    Aborted.")
			return nil
		}
	}

	var a initAnswers
	fmt.Println("\n--- Access ---")
	a.Creator = prompt(reader, "Creator Matrix ID", "")
	if admins := prompt(reader, "Admin Matrix IDs (comma separated)", ""); admins != "" {
		for _, id := range strings.Split(admins, ",") {
			if id = strings.TrimSpace(id); id != "" {
				a.Admins = append(a.Admins, id)
			}
		}
	}

	fmt.Println("\n--- Matrix ---")
	a.Homeserver = prompt(reader, "Homeserver URL", "https://matrix.org")
	a.UserID = prompt(reader, "Bot Matrix ID", "")
	a.Username = prompt(reader, "Bot username (password read from VITO_MATRIX_PASSWORD)", "")
	a.Encryption = yes(prompt(reader, "Enable end-to-end encryption?", "yes"))

	fmt.Println("\n--- Providers (keys read from GEMINI_API_KEY and OPENROUTER_API_KEY) ---")
	a.OpenRouterModel = prompt(reader, "OpenRouter model for notnice", "venice/uncensored:free")

	fmt.Println("\n--- Operations ---")
	a.StatusAddr = prompt(reader, "Status server address (empty to disable)", "127.0.0.1:9090")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("    ✓ Config written to %s\n", outputFile)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. Put GEMINI_API_KEY, OPENROUTER_API_KEY and VITO_MATRIX_PASSWORD in .env")
	fmt.Println("    2. Run: vito-gateway check")
	fmt.Println("    3. Run: vito-gateway serve")
	return nil
}

// renderConfig produces the YAML written by init. Secrets are left as
// ${VAR} references.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# vito-gateway configuration\n")
	b.WriteString("# Generated by vito-gateway init\n\n")

	b.WriteString("access:\n")
	fmt.Fprintf(&b, "  creator: %q\n", a.Creator)
	if len(a.Admins) > 0 {
		b.WriteString("  admins:\n")
		for _, id := range a.Admins {
			fmt.Fprintf(&b, "    - %q\n", id)
		}
	}
	b.WriteString("\n")

	b.WriteString("providers:\n")
	b.WriteString("  timeout: \"60s\"\n")
	b.WriteString("  gemini:\n")
	b.WriteString("    api_key: \"${GEMINI_API_KEY}\"\n")
	b.WriteString("  openrouter:\n")
	b.WriteString("    api_key: \"${OPENROUTER_API_KEY}\"\n")
	fmt.Fprintf(&b, "    model: %q\n", a.OpenRouterModel)
	b.WriteString("\n")

	b.WriteString("matrix:\n")
	fmt.Fprintf(&b, "  homeserver: %q\n", a.Homeserver)
	if a.UserID != "" {
		fmt.Fprintf(&b, "  user_id: %q\n", a.UserID)
	}
	fmt.Fprintf(&b, "  username: %q\n", a.Username)
	b.WriteString("  password: \"${VITO_MATRIX_PASSWORD}\"\n")
	fmt.Fprintf(&b, "  encryption: %t\n", a.Encryption)
	b.WriteString("  # Only respond in these rooms (empty = all joined rooms)\n")
	b.WriteString("  allowed_rooms: []\n")
	b.WriteString("\n")

	b.WriteString("conversation:\n")
	b.WriteString("  ttl: \"1h\"\n")
	b.WriteString("  sweep_interval: \"5m\"\n")
	b.WriteString("\n")

	b.WriteString("persona:\n")
	fmt.Fprintf(&b, "  timezone: %q\n", config.DefaultTimezone)
	b.WriteString("\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	b.WriteString("  format: \"text\"\n")
	b.WriteString("\n")

	b.WriteString("metrics:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", a.StatusAddr != "")
	b.WriteString("\n")

	b.WriteString("status:\n")
	fmt.Fprintf(&b, "  addr: %q\n", a.StatusAddr)
	return b.String()
}

func yes(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("    %s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("    %s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
