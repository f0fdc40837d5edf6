package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedOutput string
		expectError    bool
	}{
		{
			name:           "help flag",
			args:           []string{"--help"},
			expectedOutput: "Smart Navigator",
			expectError:    false,
		},
		{
			name:           "invalid flag",
			args:           []string{"--invalid-flag"},
			expectedOutput: "unknown flag: --invalid-flag",
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand(t)

			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			output := buf.String()

			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !strings.Contains(output, tt.expectedOutput) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.expectedOutput, output)
			}
		})
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "migrate", "import", "healthcheck", "version"} {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

// newRootCommand creates a fresh root command so tests do not pollute the
// package-level command state.
func newRootCommand(t *testing.T) *cobra.Command {
	testRootCmd := &cobra.Command{
		Use:   "navigator",
		Short: "Smart Navigator - campus map and events backend",
		Long:  rootCmd.Long,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Tests never start the server.
			return nil
		},
	}

	var configPath, logLevel, logFormat string
	testRootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	testRootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level")
	testRootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format")

	for _, sub := range []*cobra.Command{migrateCmd, importCmd, healthcheckCmd, versionCmd} {
		if sub.HasParent() {
			sub.Parent().RemoveCommand(sub)
		}
		testRootCmd.AddCommand(sub)
		t.Cleanup(func() {
			testRootCmd.RemoveCommand(sub)
			rootCmd.AddCommand(sub)
		})
	}
	return testRootCmd
}
