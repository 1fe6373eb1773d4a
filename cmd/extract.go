package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/clinical-extract/internal/cost"
	"github.com/sells-group/clinical-extract/internal/model"
	"github.com/sells-group/clinical-extract/internal/provider"
	"github.com/sells-group/clinical-extract/internal/schema"
)

var (
	extractTypes    []string
	extractProvider string
	extractOutput   string
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract clinical records from a document",
	Long: `Extract runs the guided two-stage extraction over a plain-text
clinical document and prints the typed, cited records as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringSliceVar(&extractTypes, "types", nil,
		"resource types to extract (default: all catalog types)")
	extractCmd.Flags().StringVar(&extractProvider, "provider", "",
		"LLM provider override (anthropic or openai)")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "",
		"write JSON results to a file instead of stdout")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	path := args[0]
	raw, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read document %s", path)
	}

	targets, err := resolveTargets(extractTypes)
	if err != nil {
		return err
	}

	p, err := newProvider(extractProvider)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	docID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc := model.NewDocument(docID, string(raw))

	zap.L().Info("starting extraction",
		zap.String("document", docID),
		zap.String("provider", p.Name()),
		zap.Int("targets", len(targets)))

	r := newRunner(p, st, targets)
	results, err := r.ExtractDocument(ctx, doc)
	if err != nil {
		return err
	}
	logUsage(p)

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode results")
	}

	if extractOutput != "" {
		if err := os.WriteFile(extractOutput, out, 0o644); err != nil {
			return eris.Wrapf(err, "write output %s", extractOutput)
		}
		zap.L().Info("results written", zap.String("path", extractOutput))
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// logUsage reports token consumption and estimated spend when the provider
// surfaces usage.
func logUsage(p provider.Provider) {
	ur, ok := p.(provider.UsageReporter)
	if !ok {
		return
	}
	in, out := ur.Usage()
	if in == 0 && out == 0 {
		return
	}

	model := cfg.Anthropic.Model
	if p.Name() == "openai" {
		model = cfg.OpenAI.Model
	}

	fields := []zap.Field{
		zap.Int64("input_tokens", in),
		zap.Int64("output_tokens", out),
	}
	if spend, known := cost.NewCalculator(cost.DefaultRates()).MessageCost(p.Name(), model, in, out); known {
		fields = append(fields, zap.Float64("estimated_cost_usd", spend))
	}
	zap.L().Info("token usage", fields...)
}

// resolveTargets maps --types flag values onto catalog resources,
// defaulting to the full catalog.
func resolveTargets(names []string) ([]schema.Resource, error) {
	if len(names) == 0 {
		return schema.Catalog(), nil
	}
	return schema.ByName(names)
}
