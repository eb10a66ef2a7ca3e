package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/8agana/unified-intelligence/cmd/ui-cli/ui"
	"github.com/8agana/unified-intelligence/internal/thought"
)

var inspectChainID string

var inspectChainCmd = &cobra.Command{
	Use:   "inspect-chain",
	Short: "Dump every thought in a reasoning chain",
	Long:  `Fetches and prints a chain's thoughts in order, for debugging a stuck workflow or a malformed chain append.`,
	RunE:  runInspectChain,
}

func init() {
	inspectChainCmd.Flags().StringVar(&inspectChainID, "chain", "", "chain id (required)")
	_ = inspectChainCmd.MarkFlagRequired("chain")
	rootCmd.AddCommand(inspectChainCmd)
}

func runInspectChain(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ui.Init(noColor)
	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	repo := thought.New(d.gw, d.scripts, d.log)
	thoughts, err := repo.GetChain(ctx, d.cfg.InstanceID, inspectChainID)
	if err != nil {
		return fmt.Errorf("get chain: %w", err)
	}

	ui.Section(fmt.Sprintf("Chain %s (%d thoughts)", inspectChainID, len(thoughts)))
	for _, t := range thoughts {
		fmt.Printf("[%d/%d] %s  (%s)\n", t.ThoughtNumber, t.TotalThoughts, t.Timestamp, t.ID)
		fmt.Printf("  %s\n", t.Content)
		if len(t.Tags) > 0 {
			fmt.Printf("  tags: %s\n", joinTags(t.Tags))
		}
	}
	return nil
}
