package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .attree.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to attree! Let's configure your server.")
	fmt.Println()

	defaults := DefaultConfig()

	// 1. Listen port.
	portPrompt := promptui.Prompt{
		Label:   "Port to listen on",
		Default: strconv.Itoa(defaults.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	port, _ := strconv.Atoi(portStr)

	// 2. Static assets directory.
	staticPrompt := promptui.Prompt{
		Label:   "Directory with front-end assets",
		Default: defaults.StaticDir,
	}
	staticDir, err := staticPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}

	// 3. Docs directory for /help and /about.
	docsPrompt := promptui.Prompt{
		Label:   "Directory with help/about markdown",
		Default: defaults.DocsDir,
	}
	docsDir, err := docsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("docs dir: %w", err)
	}

	// 4. CORS posture.
	corsPrompt := promptui.Select{
		Label: "Allowed origins",
		Items: []string{
			"localhost only (recommended)",
			"any origin (dev mode)",
		},
	}
	corsIdx, _, err := corsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("origins: %w", err)
	}

	cfg := &Config{
		Port:             port,
		StaticDir:        staticDir,
		DocsDir:          docsDir,
		AllowAllOrigins:  corsIdx == 1,
		MaxSnapshotBytes: defaults.MaxSnapshotBytes,
	}

	if err := cfg.Save(DefaultPath); err != nil {
		return nil, err
	}
	fmt.Printf("\nConfiguration saved to %s\n", DefaultPath)
	return cfg, nil
}
