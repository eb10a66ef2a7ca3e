package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/8agana/unified-intelligence/cmd/ui-cli/ui"
	"github.com/8agana/unified-intelligence/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-session-summaries",
	Short: "Migrate legacy ui_start embedding keys into the session-summaries index",
	Long: `Legacy deployments stored session-summary chunk vectors as raw
{instance}:ui_start:emb:{chain}:{offset} SET keys, with the summary text
held separately at {instance}:ui_start:summary:{chain}. This rewrites
each into the session-summaries hash-vector document the Retrieval
Engine now expects, and removes the legacy key.`,
	RunE: runMigrate,
}

const migrateChunkSize = 2000

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	ui.Init(noColor)
	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	index := fmt.Sprintf("idx:%s:session-summaries", d.cfg.InstanceID)
	prefix := fmt.Sprintf("%s:embeddings:session-summaries:", d.cfg.InstanceID)
	if _, err := d.gw.EnsureVectorIndex(ctx, index, prefix, store.VectorSchema{
		Dims:           d.cfg.Embedding.Dimensions,
		DistanceMetric: "COSINE",
		M:              d.cfg.Embedding.HNSWMaxConnections,
		EFConstruction: d.cfg.Embedding.HNSWEFConstruction,
	}); err != nil {
		return fmt.Errorf("ensure target index: %w", err)
	}

	migrated, skipped := 0, 0
	pattern := fmt.Sprintf("%s:ui_start:emb:*", d.cfg.InstanceID)
	err = d.gw.Scan(ctx, pattern, 500, func(keys []string) error {
		for _, key := range keys {
			ok, merr := migrateOne(ctx, d, key, prefix)
			if merr != nil {
				ui.Warn("skipping %s: %v", key, merr)
				skipped++
				continue
			}
			if ok {
				migrated++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan legacy keys: %w", err)
	}

	ui.Success("migration complete: migrated=%d skipped=%d", migrated, skipped)
	return nil
}

func migrateOne(ctx context.Context, d *deps, key, prefix string) (bool, error) {
	// key format: {instance}:ui_start:emb:{chain}:{offset}
	parts := strings.Split(key, ":")
	if len(parts) < 5 {
		return false, fmt.Errorf("unexpected key format")
	}
	// The chain id may itself contain colons (session:<uuid>).
	chainID := strings.Join(parts[3:len(parts)-1], ":")
	offset, _ := strconv.Atoi(parts[len(parts)-1])

	targetKey := fmt.Sprintf("%s%s:%d", prefix, chainID, offset)
	if existing, err := d.gw.HashGetAll(ctx, targetKey); err == nil && len(existing) > 0 {
		return false, nil
	}

	raw, found, err := d.gw.StringGet(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read legacy vector: %w", err)
	}
	if !found {
		return false, fmt.Errorf("no data at legacy key")
	}
	vec := store.DecodeVector(raw)

	chunk, ts := recoverChunk(ctx, d, chainID, offset)

	fields := map[string]interface{}{
		"content":    chunk,
		"tags":       "session-summary",
		"category":   "session-summary",
		"importance": "",
		"chain_id":   chainID,
		"thought_id": "",
		"ts":         ts,
		"vector":     store.EncodeVector(vec),
	}
	if err := d.gw.HashUpsert(ctx, targetKey, fields); err != nil {
		return false, fmt.Errorf("write migrated document: %w", err)
	}
	if err := d.gw.Del(ctx, key); err != nil {
		return false, fmt.Errorf("delete legacy key: %w", err)
	}
	return true, nil
}

// recoverChunk reconstructs the chunk text that lived at offset in the
// chain's session summary, falling back to an empty chunk and the current
// time when the summary document is gone.
func recoverChunk(ctx context.Context, d *deps, chainID string, offset int) (string, int64) {
	sumKey := fmt.Sprintf("%s:ui_start:summary:%s", d.cfg.InstanceID, chainID)
	raw, found, err := d.gw.JSONGet(ctx, sumKey, "$")
	if err != nil || !found {
		return "", time.Now().Unix()
	}

	var doc struct {
		Summary   string `json:"summary"`
		CreatedAt string `json:"created_at"`
	}
	if jerr := json.Unmarshal([]byte(raw), &doc); jerr != nil {
		return "", time.Now().Unix()
	}

	b := []byte(doc.Summary)
	start := offset
	if start > len(b) {
		start = len(b)
	}
	for start < len(b) && !utf8.RuneStart(b[start]) {
		start++
	}
	end := start + migrateChunkSize
	if end >= len(b) {
		end = len(b)
	} else {
		for end > start && !utf8.RuneStart(b[end]) {
			end--
		}
	}
	chunk := string(b[start:end])

	ts := time.Now().Unix()
	if parsed, perr := time.Parse(time.RFC3339, doc.CreatedAt); perr == nil {
		ts = parsed.Unix()
	}
	return chunk, ts
}
