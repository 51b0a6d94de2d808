package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/store"
)

func newRagCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rag",
		Short: "Manage the document similarity store",
		Long: `Rag stores documents per namespace and searches them by meaning.

A document is stored once per namespace however often it is ingested.`,
	}
	cmd.AddCommand(newRagIngestCmd(a), newRagSearchCmd(a), newRagListCmd(a))
	return cmd
}

func newRagIngestCmd(a *App) *cobra.Command {
	var (
		source    store.Source
		namespace string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file|text>...",
		Short: "Add documents to a namespace",
		Long: `Ingest adds documents to a namespace. An argument naming a readable file
contributes one document per blank-line separated paragraph; any other
argument is a document by itself.`,
		Example: `  mule rag ingest --source "Charaka Samhita" --author Charaka --type book --namespace user1 charaka.txt
  mule rag ingest --namespace user2 "warm sesame oil massage soothes body ache"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.Store(ctx)
			if err != nil {
				return err
			}

			texts, err := readDocuments(args)
			if err != nil {
				return err
			}

			var sourceID string
			if source.Name != "" {
				sourceID, err = s.UpsertSource(ctx, source)
				if err != nil {
					return err
				}
			}

			inserted, err := s.UpsertDocuments(ctx, texts, sourceID, namespace, nil)
			if err != nil {
				return err
			}
			a.printf("inserted %d of %d documents into %q\n", inserted, len(texts), namespace)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&source.Name, "source", "", "source the documents come from")
	f.StringVar(&source.Author, "author", "", "source author")
	f.StringVar(&source.Type, "type", "", "source type, such as book or article")
	f.StringVar(&namespace, "namespace", "default", "namespace to store into")
	return cmd
}

func newRagSearchCmd(a *App) *cobra.Command {
	var (
		namespace string
		topK      int
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Find the documents closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.Store(ctx)
			if err != nil {
				return err
			}

			results, err := s.Search(ctx, strings.Join(args, " "), namespace, topK, threshold)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				a.println("no matches")
				return nil
			}
			for i, r := range results {
				a.printf("%d. [%.3f] %s\n", i+1, r.Score, utils.TruncateString(r.Text, 200))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&namespace, "namespace", "default", "namespace to search")
	f.IntVarP(&topK, "top-k", "k", store.DefaultTopK, "maximum number of results")
	f.Float64Var(&threshold, "threshold", store.DefaultThreshold, "maximum cosine distance")
	return cmd
}

func newRagListCmd(a *App) *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every document of a namespace in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.Store(ctx)
			if err != nil {
				return err
			}

			results, err := s.GetAll(ctx, namespace)
			if err != nil {
				return err
			}
			for _, r := range results {
				a.printf("%s\t%s\n", r.ID, utils.TruncateString(r.Text, 200))
			}
			a.printf("%d documents in %q\n", len(results), namespace)
			return nil
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", "default", "namespace to list")
	return cmd
}

// readDocuments expands file arguments into their paragraphs.
func readDocuments(args []string) ([]string, error) {
	var texts []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || info.IsDir() {
			texts = append(texts, arg)
			continue
		}

		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("cli: read %s: %w", arg, err)
		}
		texts = append(texts, utils.Paragraphs(string(data))...)
	}
	return texts, nil
}
