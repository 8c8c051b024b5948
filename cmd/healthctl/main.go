// Command healthctl runs one analysis or one suggestions regeneration from a shell, using the
// same wiring as the API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wolfman30/medrecord-ai/cmd/mainconfig"
	"github.com/wolfman30/medrecord-ai/internal/analysis"
	"github.com/wolfman30/medrecord-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medrecord-ai/internal/config"
	"github.com/wolfman30/medrecord-ai/internal/observability/metrics"
	"github.com/wolfman30/medrecord-ai/internal/suggestions"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

var version = "dev"

type documentUploader interface {
	Upload(ctx context.Context, path, contentType string, data []byte) error
}

// factories build the services lazily so --help never touches AWS or the database.
type factories struct {
	analyzer    func(ctx context.Context) (analysis.Analyzer, func(), error)
	regenerator func(ctx context.Context) (suggestions.Regenerator, func(), error)
	uploader    func(ctx context.Context) (documentUploader, error)
}

func main() {
	_ = mainconfig.LoadDotEnv()
	cfg := appconfig.Load()
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel)

	if err := newRootCmd(liveFactories(cfg, logger)).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(f factories) *cobra.Command {
	root := &cobra.Command{
		Use:          "healthctl",
		Short:        "Run health record analyses and suggestion regenerations",
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "healthctl %s\n", version)
		},
	})
	root.AddCommand(newAnalyzeCmd(f), newSuggestCmd(f), newUploadCmd(f))
	return root
}

func newAnalyzeCmd(f factories) *cobra.Command {
	var req analysis.Request
	var kind, textFile string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a pdf, an audio file or free text",
		Example: `  healthctl analyze --type pdf --file user-1/analitica.pdf
  healthctl analyze --type text --text-file nota.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Kind = analysis.Kind(strings.ToLower(strings.TrimSpace(kind)))
			if textFile != "" {
				data, err := readInput(cmd.InOrStdin(), textFile)
				if err != nil {
					return err
				}
				req.TextContent = string(data)
			}
			if err := req.Validate(); err != nil {
				return err
			}

			analyzer, closeFn, err := f.analyzer(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := analyzer.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "input type: pdf, audio or text")
	cmd.Flags().StringVar(&req.FilePath, "file", "", "storage path of the uploaded file")
	cmd.Flags().StringVar(&req.TextContent, "text", "", "free text to analyze")
	cmd.Flags().StringVar(&textFile, "text-file", "", "read the text from a local file, or - for stdin")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newSuggestCmd(f factories) *cobra.Command {
	var userID, trigger string

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Regenerate the active suggestions of one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := suggestions.Trigger(strings.ToUpper(strings.TrimSpace(trigger)))
			if !t.Valid() {
				return fmt.Errorf("unknown trigger %q", trigger)
			}

			regen, closeFn, err := f.regenerator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := regen.Regenerate(cmd.Context(), userID, t)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to regenerate for")
	cmd.Flags().StringVar(&trigger, "trigger", string(suggestions.TriggerManual), "regeneration trigger")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUploadCmd(f factories) *cobra.Command {
	var localFile, path, contentType string

	cmd := &cobra.Command{
		Use:     "upload",
		Short:   "Copy a local document into storage so it can be analyzed",
		Example: `  healthctl upload --file ./analitica.pdf --path user-1/analitica.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), localFile)
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return errors.New("refusing to upload an empty file")
			}
			if contentType == "" {
				contentType = detectContentType(localFile, data)
			}

			store, err := f.uploader(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Upload(cmd.Context(), path, contentType, data); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"file_path":    path,
				"content_type": contentType,
				"bytes":        len(data),
			})
		},
	}
	cmd.Flags().StringVar(&localFile, "file", "", "local file to upload, or - for stdin")
	cmd.Flags().StringVar(&path, "path", "", "storage path, a key in STORAGE_BUCKET or s3://bucket/key")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type; detected from the file when empty")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func detectContentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

func liveFactories(cfg *appconfig.Config, logger *logging.Logger) factories {
	deps := func(ctx context.Context) (bootstrap.Deps, func(), error) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return bootstrap.Deps{}, nil, fmt.Errorf("load aws config: %w", err)
		}
		provider, err := bootstrap.BuildLLM(ctx, cfg, awsCfg, logger)
		if err != nil {
			return bootstrap.Deps{}, nil, err
		}
		return bootstrap.Deps{
			AWS:     awsCfg,
			LLM:     provider,
			Metrics: metrics.NewPipelineMetrics(prometheus.NewRegistry()),
			Logger:  logger,
		}, func() { _ = provider.Close() }, nil
	}

	return factories{
		uploader: func(ctx context.Context) (documentUploader, error) {
			awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("load aws config: %w", err)
			}
			return bootstrap.BuildStorage(cfg, awsCfg, logger), nil
		},
		analyzer: func(ctx context.Context) (analysis.Analyzer, func(), error) {
			d, closeFn, err := deps(ctx)
			if err != nil {
				return nil, nil, err
			}
			svc, err := bootstrap.BuildAnalysisService(cfg, d)
			if err != nil {
				closeFn()
				return nil, nil, err
			}
			return svc, closeFn, nil
		},
		regenerator: func(ctx context.Context) (suggestions.Regenerator, func(), error) {
			pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			if pool == nil {
				return nil, nil, errors.New("DATABASE_URL is required for suggest")
			}
			d, closeFn, err := deps(ctx)
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			d.Pool = pool
			store, _ := bootstrap.BuildStores(pool)
			synth := bootstrap.BuildSynthesizer(cfg, store, d)
			return synth, func() { closeFn(); pool.Close() }, nil
		},
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
