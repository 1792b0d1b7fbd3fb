// cmd/completion.go
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for vecimport.

To load completions:

Bash:
  $ source <(vecimport completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ vecimport completion bash > /etc/bash_completion.d/vecimport
  # macOS:
  $ vecimport completion bash > $(brew --prefix)/etc/bash_completion.d/vecimport

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ vecimport completion zsh > "${fpath[1]}/_vecimport"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ vecimport completion fish | source

  # To load completions for each session, execute once:
  $ vecimport completion fish > ~/.config/fish/completions/vecimport.fish

PowerShell:
  PS> vecimport completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> vecimport completion powershell > vecimport.ps1
  # and source this file from your PowerShell profile.`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		switch args[0] {
		case "bash":
			rootCmd.GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
