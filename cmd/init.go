package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/parley/internal/config"
)

// wizardProviders is the menu order; all have entries in providers_default.yaml.
var wizardProviders = []string{
	"openrouter", "openai", "anthropic", "deepseek", "groq", "gemini", "kimi", "qwen", "ollama",
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up parley: choose a provider, enter your API key, and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Welcome to the parley configuration wizard!")
	fmt.Println()

	fmt.Println("Available providers:")
	for i, p := range wizardProviders {
		fmt.Printf("  %d. %-10s  %s\n", i+1, p, config.KnownProviderModels[p])
	}
	fmt.Printf("\nSelect provider (1-%d) [1]: ", len(wizardProviders))
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	selectedIdx := 0
	if input != "" {
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > len(wizardProviders) {
			return fmt.Errorf("invalid selection %q", input)
		}
		selectedIdx = n - 1
	}
	providerName := wizardProviders[selectedIdx]
	fmt.Printf("Selected: %s\n\n", providerName)

	var pc config.ProviderConfig
	fmt.Printf("Enter API key for %s: ", providerName)
	apiKey, _ := reader.ReadString('\n')
	pc.APIKey = strings.TrimSpace(apiKey)
	if pc.APIKey == "" && providerName != "ollama" {
		return fmt.Errorf("API key cannot be empty")
	}

	fmt.Printf("Model [%s]: ", config.KnownProviderModels[providerName])
	model, _ := reader.ReadString('\n')
	pc.Model = strings.TrimSpace(model)

	configPath := cfgFile
	if configPath == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		configPath = p
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("\nConfig file already exists at %s\n", configPath)
		fmt.Print("Update its provider settings? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Other settings in an existing file are preserved.
	if err := config.SaveProviderToFile(configPath, providerName, pc); err != nil {
		return err
	}

	fmt.Printf("\nConfig saved to %s\n", configPath)
	fmt.Println("You can now run: parley")
	return nil
}
