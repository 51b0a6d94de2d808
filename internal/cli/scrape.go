package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leofalp/mule/core/extract"
	"github.com/leofalp/mule/patterns/mules"
)

// ErrFetchFailed is returned by scrape when the page could not be fetched.
var ErrFetchFailed = errors.New("cli: fetch failed")

func newScrapeCmd(a *App) *cobra.Command {
	var (
		title string
		tags  []string
	)

	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Fetch a page and print its main content as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fetcher, err := a.pageFetcher(ctx)
			if err != nil {
				return err
			}

			url := args[0]
			page := fetcher.Get(ctx, url)
			if !page.OK() {
				return fmt.Errorf("%w: %s", ErrFetchFailed, url)
			}

			allowed := extract.DefaultAllowedTags()
			if len(tags) > 0 {
				allowed = extract.NewTagSet(tags...)
			}
			doc := extract.Extract(page.Text(), title, url, allowed)
			if doc.Content == "" {
				a.logger.Warn("No main content found", "url", url)
			}

			if doc.Title != "" {
				a.printf("# %s\n\n", doc.Title)
			}
			a.println(doc.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "title to report instead of the page title")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags to keep (default div, h1-h6, p, pre, code)")
	return cmd
}

func newClassifyCmd(a *App) *cobra.Command {
	var instruction string

	cmd := &cobra.Command{
		Use:   "classify <message...>",
		Short: "Classify a message with the structured-output guardrail",
		Long: `Classify asks a classifier agent for {"result": number} and prints the
verdict. The default instruction accepts health and wellness questions.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.Runtime(ctx)
			if err != nil {
				return err
			}

			classifier := mules.NewClassifier("mule-guardrail", a.cfg.Model, instruction)
			verdict, err := mules.Classify(ctx, rt, classifier, strings.Join(args, " "))
			if err != nil {
				return err
			}

			status := "rejected"
			if verdict.Accepted() {
				status = "accepted"
			}
			a.printf("%s (result %v)\n", status, verdict.Result)
			return nil
		},
	}

	cmd.Flags().StringVar(&instruction, "instruction", mules.GuardrailInstruction, "classifier instruction; {} is the message")
	return cmd
}
