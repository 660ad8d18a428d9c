package classify

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/frigate-speciesid/speciesid/internal/analysis"
	"github.com/frigate-speciesid/speciesid/internal/classifier"
	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/names"
	"github.com/frigate-speciesid/speciesid/internal/reconcile"
	"github.com/frigate-speciesid/speciesid/internal/snapshot"
)

// Command creates the command that classifies image files offline.
func Command(settings *conf.Settings) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "Classify image files with the configured model",
		Long:  "Run the configured model on local images, applying the same letterbox and acceptance rule as live events. Nothing is stored.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if topK < 1 {
				return errors.Newf("--top must be at least 1").
					Component("cmd").
					Category(errors.CategoryValidation).
					Build()
			}

			model, err := analysis.LoadClassifier(settings, topK)
			if err != nil {
				return err
			}
			defer model.Close()

			resolver := openNames(settings.Classification.NameDatabase)
			if resolver != nil {
				defer resolver.Close()
			}

			rule := reconcile.New(nil, nil, nil, nil, reconcile.Config{
				Threshold:     settings.Classification.Threshold,
				SentinelIndex: settings.Classification.SentinelIndex,
			})

			for _, path := range args {
				if err := classifyFile(cmd.Context(), cmd.OutOrStdout(), model, rule, resolver, path); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 5, "Number of results to print per image")
	return cmd
}

// openNames opens an existing name database; a missing one is not created
func openNames(path string) *names.Resolver {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	resolver, err := names.Open(path)
	if err != nil {
		return nil
	}
	return resolver
}

func classifyFile(ctx context.Context, out io.Writer, model classifier.Classifier, rule *reconcile.Reconciler,
	resolver *names.Resolver, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(err).
			Component("cmd").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	img, err := snapshot.Prepare(data, model.InputSize())
	if err != nil {
		return errors.New(err).
			Component("cmd").
			Category(errors.CategoryImageDecode).
			Context("path", path).
			Build()
	}

	results, err := model.Classify(ctx, img)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n", path)
	for i, r := range results {
		common := ""
		if resolver != nil {
			common = resolver.Display(ctx, r.DisplayName)
		}
		fmt.Fprintf(out, "  %d. %-5d %-40s %.4f  %s\n", i+1, r.Index, r.DisplayName, r.Score, common)
	}
	if len(results) > 0 {
		accepted, outcome := rule.Accept(results[0])
		verdict := "accepted"
		if !accepted {
			verdict = string(outcome)
		}
		fmt.Fprintf(out, "  top result: %s\n", verdict)
	}
	return nil
}
