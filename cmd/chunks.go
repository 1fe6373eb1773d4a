package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/clinical-extract/internal/chunk"
	"github.com/sells-group/clinical-extract/internal/model"
)

var (
	chunksStrategy string
	chunksSize     int
	chunksOverlap  int
)

var chunksCmd = &cobra.Command{
	Use:   "chunks <file>",
	Short: "Preview how a document splits into chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunks,
}

func init() {
	chunksCmd.Flags().StringVar(&chunksStrategy, "strategy", "",
		"chunking strategy (character, recursive, markdown)")
	chunksCmd.Flags().IntVar(&chunksSize, "size", 0, "chunk size in characters")
	chunksCmd.Flags().IntVar(&chunksOverlap, "overlap", 0, "chunk overlap in characters")
	rootCmd.AddCommand(chunksCmd)
}

func runChunks(cmd *cobra.Command, args []string) error {
	path := args[0]
	raw, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read document %s", path)
	}

	policy := chunkPolicy(cfg.Chunk)
	if chunksStrategy != "" {
		policy.Strategy = chunk.Strategy(chunksStrategy)
	}
	if chunksSize > 0 {
		policy.ChunkSize = chunksSize
	}
	if chunksOverlap > 0 {
		policy.Overlap = chunksOverlap
	}

	docID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc := model.NewDocument(docID, string(raw))

	chunks, err := chunk.Select(doc, policy)
	if err != nil {
		return eris.Wrap(err, "chunk document")
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTART\tEND\tLEN\tPREVIEW")
	for i, c := range chunks {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\n",
			i, c.StartIndex, c.EndIndex, c.EndIndex-c.StartIndex, preview(c.Text(), 60))
	}
	return w.Flush()
}

func preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
