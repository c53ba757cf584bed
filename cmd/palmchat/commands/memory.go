// ABOUTME: Memory command group driving the character memory pipeline
// ABOUTME: Process contacts, show stored memories, and update global memory
package commands

import (
	"fmt"
	"os"

	"github.com/junelab/palmchat/internal/llm"
	"github.com/junelab/palmchat/internal/memory"
	"github.com/junelab/palmchat/internal/models"
	"github.com/spf13/cobra"
)

// NewMemoryCmd creates the memory command group.
func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage character and global memories",
		Long: `Run the memory pipeline against stored conversations. The pipeline
reads the apiSettings record for its model endpoint; without one it
silently does nothing, matching the in-app behavior.`,
	}

	cmd.AddCommand(newMemoryProcessCmd())
	cmd.AddCommand(newMemoryShowCmd())
	cmd.AddCommand(newMemoryGlobalCmd())
	return cmd
}

func newPipeline() (*memory.Pipeline, func(), error) {
	svc, cfg, cleanup, err := openService()
	if err != nil {
		return nil, nil, err
	}
	caller := llm.NewClient(cfg.MaxRetries, cfg.RetryDelay)
	p := memory.NewPipeline(svc.DB, caller, memory.Config{
		PrivateThreshold: cfg.PrivateThreshold,
		GroupThreshold:   cfg.GroupThreshold,
	})
	return p, cleanup, nil
}

func newMemoryProcessCmd() *cobra.Command {
	var (
		force bool
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "process [contactId]",
		Short: "Run the memory pipeline for one contact or all pending",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("contact id required unless --all is set")
			}

			p, cleanup, err := newPipeline()
			if err != nil {
				return err
			}
			defer cleanup()

			if all {
				p.ProcessAllPending(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), "Processed all pending contacts")
				return nil
			}

			result := p.ProcessContact(cmd.Context(), args[0], force)
			fmt.Fprintf(cmd.OutOrStdout(), "triggered=%v gateAsked=%v updated=%v\n",
				result.Triggered, result.GateAsked, result.Updated)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "bypass the message-count threshold")
	cmd.Flags().BoolVar(&all, "all", false, "process every contact with unprocessed messages")
	return cmd
}

func newMemoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <contactId>",
		Short: "Print the stored memory for a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService()
			if err != nil {
				return err
			}
			defer cleanup()

			var mem models.CharacterMemory
			found, err := svc.DB.GetInto(cmd.Context(), "characterMemories", args[0], &mem)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "No memory stored for %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Memory for %s (updated %d times, last %s):\n\n%s\n",
				mem.ContactID, mem.UpdateCount, mem.UpdatedAt, mem.Memory)
			return nil
		},
	}
}

func newMemoryGlobalCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "global",
		Short: "Show global memory, or update it from forum content",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				svc, _, cleanup, err := openService()
				if err != nil {
					return err
				}
				defer cleanup()

				var mem models.GlobalMemory
				found, err := svc.DB.GetInto(cmd.Context(), "globalMemory", "memory", &mem)
				if err != nil {
					return err
				}
				if !found {
					fmt.Fprintln(cmd.OutOrStdout(), "No global memory stored")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Global memory (last %s):\n\n%s\n", mem.UpdatedAt, mem.Content)
				return nil
			}

			content, err := os.ReadFile(file) // #nosec G304
			if err != nil {
				return fmt.Errorf("failed to read forum content: %w", err)
			}

			p, cleanup, err := newPipeline()
			if err != nil {
				return err
			}
			defer cleanup()

			result := p.ProcessGlobal(cmd.Context(), string(content))
			fmt.Fprintf(cmd.OutOrStdout(), "gateAsked=%v updated=%v\n", result.GateAsked, result.Updated)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "forum content file to feed the global gate")
	return cmd
}
