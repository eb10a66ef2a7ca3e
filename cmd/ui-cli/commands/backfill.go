package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/8agana/unified-intelligence/cmd/ui-cli/ui"
	"github.com/8agana/unified-intelligence/internal/knowledge"
	"github.com/8agana/unified-intelligence/internal/thought"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill-embeddings",
	Short: "Re-embed existing thoughts and knowledge-graph entities",
	Long: `Walks {instance}:Thoughts:* and {scope}:KG:entity:* and re-runs the
embedding upsert for every document found, for instances whose content
predates the embedding pipeline or whose vectors were lost.`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	ui.Init(noColor)
	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	ui.Section("Backfill embeddings")
	mp := ui.NewMultiProgress()
	incThoughts, doneThoughts := mp.AddCounter("thoughts")
	incEntities, doneEntities := mp.AddCounter("kg-entities")
	incFederation, doneFederation := mp.AddCounter("federation-entities")

	var (
		wg                     sync.WaitGroup
		tBackfilled, tSkipped  int
		eBackfilled, eSkipped  int
		fBackfilled, fSkipped  int
		tErr, eErr, fErr       error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		defer doneThoughts()
		tBackfilled, tSkipped, tErr = backfillThoughts(ctx, d, incThoughts)
	}()
	go func() {
		defer wg.Done()
		defer doneEntities()
		eBackfilled, eSkipped, eErr = backfillEntities(ctx, d, knowledge.ScopePersonal, incEntities)
	}()
	go func() {
		defer wg.Done()
		defer doneFederation()
		fBackfilled, fSkipped, fErr = backfillEntities(ctx, d, knowledge.Scope("Federation"), incFederation)
	}()
	wg.Wait()
	mp.Wait()

	if tErr != nil {
		return fmt.Errorf("backfill thoughts: %w", tErr)
	}
	if eErr != nil {
		return fmt.Errorf("backfill entities (personal scope): %w", eErr)
	}
	if fErr != nil {
		return fmt.Errorf("backfill entities (federation scope): %w", fErr)
	}

	ui.Success("thoughts: backfilled=%d skipped=%d", tBackfilled, tSkipped)
	ui.Success("entities: backfilled=%d skipped=%d", eBackfilled+fBackfilled, eSkipped+fSkipped)
	return nil
}

// backfillThoughts scans the instance's thought keyspace and re-runs the
// embedding upsert for every document that parses as a Thought. Keys that
// don't decode as JSON (the dedup set, the id counter) are skipped rather
// than treated as errors.
func backfillThoughts(ctx context.Context, d *deps, progress func(int)) (backfilled, skipped int, err error) {
	pattern := fmt.Sprintf("%s:Thoughts:*", d.cfg.InstanceID)
	err = d.gw.Scan(ctx, pattern, 500, func(keys []string) error {
		for _, key := range keys {
			raw, found, gerr := d.gw.JSONGet(ctx, key, "$")
			if gerr != nil || !found {
				skipped++
				progress(1)
				continue
			}
			var t thought.Thought
			if jerr := json.Unmarshal([]byte(raw), &t); jerr != nil {
				skipped++
				progress(1)
				continue
			}
			d.embeddings.UpsertThought(ctx, d.cfg.InstanceID, t.ID, t.Content, joinTags(t.Tags), t.Category, t.ChainID)
			backfilled++
			progress(1)
		}
		return nil
	})
	return backfilled, skipped, err
}

// backfillEntities scans scope's entity keyspace and re-synthesizes and
// re-embeds every entity found.
func backfillEntities(ctx context.Context, d *deps, scope knowledge.Scope, progress func(int)) (backfilled, skipped int, err error) {
	pattern := fmt.Sprintf("%s:KG:entity:*", scope)
	err = d.gw.Scan(ctx, pattern, 500, func(keys []string) error {
		for _, key := range keys {
			raw, found, gerr := d.gw.JSONGet(ctx, key, "$")
			if gerr != nil || !found {
				skipped++
				progress(1)
				continue
			}
			var node knowledge.Node
			if jerr := json.Unmarshal([]byte(raw), &node); jerr != nil {
				skipped++
				progress(1)
				continue
			}
			text := synthesizeEntityText(node)
			if uerr := d.embeddings.UpsertEntity(ctx, string(scope), node.ID, text); uerr != nil {
				skipped++
				progress(1)
				continue
			}
			backfilled++
			progress(1)
		}
		return nil
	})
	return backfilled, skipped, err
}

// synthesizeEntityText mirrors the compact entity-text synthesis the
// ingest path uses: display name, then tag/attribute summaries, with the
// attribute JSON truncated at 400 bytes.
func synthesizeEntityText(node knowledge.Node) string {
	text := node.DisplayName
	if len(node.Tags) > 0 {
		text += " | tags: " + joinTags(node.Tags)
	}
	if len(node.Attributes) > 0 {
		if attrs, err := json.Marshal(node.Attributes); err == nil {
			s := string(attrs)
			if len(s) > 400 {
				s = s[:400]
			}
			text += " | attrs: " + s
		}
	}
	return text
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
