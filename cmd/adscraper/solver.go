package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"adscraper/pkg/solver"
	"adscraper/pkg/ui"
)

// solverCmd represents the solver command
var solverCmd = &cobra.Command{
	Use:   "solver",
	Short: "Manage solving-service credentials",
	Long: `Manage the API key used by the external CAPTCHA solving service.

The key is stored in the system keychain when one is available, with an
encrypted file fallback for headless machines.`,
}

// setKeyCmd represents the solver set-key command
var setKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store the solving-service API key",
	Run:   runSolverSetKey,
}

// showKeyCmd represents the solver show-key command
var showKeyCmd = &cobra.Command{
	Use:   "show-key",
	Short: "Show whether an API key is stored",
	Run:   runSolverShowKey,
}

// deleteKeyCmd represents the solver delete-key command
var deleteKeyCmd = &cobra.Command{
	Use:   "delete-key",
	Short: "Remove the stored API key",
	Run:   runSolverDeleteKey,
}

func init() {
	rootCmd.AddCommand(solverCmd)
	solverCmd.AddCommand(setKeyCmd)
	solverCmd.AddCommand(showKeyCmd)
	solverCmd.AddCommand(deleteKeyCmd)
}

func runSolverSetKey(cmd *cobra.Command, args []string) {
	store, err := solver.NewKeyStore()
	if err != nil {
		ui.PrintError("Failed to open key store", err.Error())
		os.Exit(1)
	}

	fmt.Print("Solving-service API key: ")
	apiKey, err := readSecret()
	if err != nil {
		ui.PrintError("Failed to read API key", err.Error())
		os.Exit(1)
	}
	if apiKey == "" {
		ui.PrintError("API key must not be empty", "")
		os.Exit(1)
	}

	if err := store.Set(apiKey); err != nil {
		ui.PrintError("Failed to store API key", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("API key stored")
}

func runSolverShowKey(cmd *cobra.Command, args []string) {
	store, err := solver.NewKeyStore()
	if err != nil {
		ui.PrintError("Failed to open key store", err.Error())
		os.Exit(1)
	}

	key, err := store.Get()
	if err != nil {
		if errors.Is(err, solver.ErrAPIKeyNotFound) {
			ui.PrintWarning("No API key stored")
			return
		}
		ui.PrintError("Failed to read API key", err.Error())
		os.Exit(1)
	}

	masked := strings.Repeat("*", len(key))
	if len(key) > 4 {
		masked = key[:2] + strings.Repeat("*", len(key)-4) + key[len(key)-2:]
	}
	ui.PrintInfo("API key", masked)
}

func runSolverDeleteKey(cmd *cobra.Command, args []string) {
	store, err := solver.NewKeyStore()
	if err != nil {
		ui.PrintError("Failed to open key store", err.Error())
		os.Exit(1)
	}

	if err := store.Delete(); err != nil {
		if errors.Is(err, solver.ErrAPIKeyNotFound) {
			ui.PrintWarning("No API key stored")
			return
		}
		ui.PrintError("Failed to delete API key", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("API key deleted")
}

// readSecret reads a line from stdin without echoing when possible
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
