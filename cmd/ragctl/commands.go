package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/company-rag/internal/bootstrap"
	"github.com/kirillkom/company-rag/internal/config"
	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/usecase"
	"github.com/kirillkom/company-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/company-rag/internal/infrastructure/storage/localfs"
)

// newRootCmd builds the offline toolbox: every subcommand runs one pipeline
// stage locally, without Postgres, NATS or the model servers.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ragctl",
		Short:        "Inspect chunking, query analysis and citation extraction offline.",
		SilenceUsage: true,
	}
	root.AddCommand(newChunkCmd(), newAnalyzeCmd(), newCiteCmd())
	return root
}

func newChunkCmd() *cobra.Command {
	var (
		maxSize     int
		overlapSize int
		minSize     int
	)
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Extract a document and print its fragments as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			storage, err := localfs.New(filepath.Dir(path))
			if err != nil {
				return err
			}

			name := filepath.Base(path)
			doc := &domain.Document{
				ID:          name,
				Filename:    name,
				MimeType:    mime.TypeByExtension(filepath.Ext(name)),
				StoragePath: name,
			}
			text, err := bootstrap.NewTextExtractor(storage).Extract(context.Background(), doc)
			if err != nil {
				return fmt.Errorf("extract %s: %w", name, err)
			}

			fragments := chunking.NewSemanticChunker(maxSize, overlapSize, minSize).Chunk(text)
			for i := range fragments {
				fragments[i].DocumentID = doc.ID
				fragments[i].Filename = doc.Filename
			}
			return printJSON(cmd.OutOrStdout(), fragments)
		},
	}
	cfg := config.Load()
	cmd.Flags().IntVar(&maxSize, "max-size", cfg.ChunkMaxSize, "maximum fragment length in characters")
	cmd.Flags().IntVar(&overlapSize, "overlap", cfg.ChunkOverlap, "characters carried over between fragments")
	cmd.Flags().IntVar(&minSize, "min-size", cfg.ChunkMinSize, "fragments shorter than this are merged")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <query>",
		Short: "Classify a query and print the recommended number of fragments.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis := usecase.NewQueryAnalyzer().Analyze(strings.Join(args, " "))
			return printJSON(cmd.OutOrStdout(), analysis)
		},
	}
}

func newCiteCmd() *cobra.Command {
	var profilePath string
	cmd := &cobra.Command{
		Use:   "cite [answer]",
		Short: "Extract [n] citations and detect no-answer replies. Reads stdin without an argument.",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := config.LoadProfile(profilePath)
			if err != nil {
				return err
			}

			answer := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read answer: %w", err)
				}
				answer = string(raw)
			}
			extraction := usecase.NewCitationExtractor(profile.NoAnswerPhrases).Extract(answer)
			return printJSON(cmd.OutOrStdout(), extraction)
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", config.Load().ProfileFile, "YAML profile with no-answer phrases")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
