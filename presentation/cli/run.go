package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"selfheal/application/healing"
	"selfheal/domain/entities"
	"selfheal/infrastructure/browser"
	"selfheal/presentation/terminal"

	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		url  string
		save string
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a script from the terminal, answering corrections on stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readScript(cmd, args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := a.openStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if save != "" {
				saved, err := store.Scripts().Save(ctx, save, code)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved script %s (%s)\n", saved.Name, saved.ID)
			}

			driver, err := browser.NewDriver(a.browserOptions(), a.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize browser: %w", err)
			}
			defer driver.Close()

			opts, err := a.controllerOptions()
			if err != nil {
				return err
			}

			console := terminal.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), a.logger)
			ctrl := healing.NewController(driver, store.Locators(), console, a.logger, opts...)
			return console.Run(ctx, ctrl, entities.ExecuteRequest{Code: code, URL: url})
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "page the script starts on")
	cmd.Flags().StringVar(&save, "save", "", "also save the script under this name")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

// readScript reads path, or stdin when path is "-"
func readScript(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read script from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(b), nil
}
