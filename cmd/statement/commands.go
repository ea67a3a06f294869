package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement/service"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/transaction"
	"github.com/FACorreiaa/bankstatement2csv/pkg/storage"
)

func newRedactCmd(a *app) *cobra.Command {
	var (
		out         string
		debug       bool
		noRasterize bool
	)
	cmd := &cobra.Command{
		Use:   "redact <statement.pdf>",
		Short: "Cover personal data in a statement PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("debug") {
				a.cfg.Redaction.Debug = debug
			}
			if noRasterize {
				a.cfg.Redaction.Rasterize = false
			}

			deps, err := InitDependencies(cmd.Context(), a.cfg, a.logger, Needs{})
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			in := args[0]
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			red, err := deps.Pipeline.Redact(cmd.Context(), filepath.Base(in), data)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(in), transaction.RedactedName(filepath.Base(in)))
			}
			if err := os.WriteFile(out, red.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d matches, %d boxes, rasterized=%t\n",
				out, red.Report.Pages, red.Report.Matches, red.Report.Boxes, red.Rasterized)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path (default <name>_redacted.pdf next to the input)")
	cmd.Flags().BoolVar(&debug, "debug", false, "paint translucent red boxes instead of opaque black ones")
	cmd.Flags().BoolVar(&noRasterize, "no-rasterize", false, "keep the vector PDF")
	return cmd
}

func newChunkCmd(a *app) *cobra.Command {
	var (
		outDir string
		pages  int
	)
	cmd := &cobra.Command{
		Use:   "chunk <statement.pdf>",
		Short: "Split a PDF into page-range chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages > 0 {
				a.cfg.Extraction.PagesPerChunk = pages
			}
			deps, err := InitDependencies(cmd.Context(), a.cfg, a.logger, Needs{})
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			in := args[0]
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			chunks, err := deps.Chunker.Split(cmd.Context(), data)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
			for _, c := range chunks {
				name := filepath.Join(outDir, fmt.Sprintf("%s-pages-%s.pdf", base, c.Label()))
				if err := os.WriteFile(name, c.Data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d pages)\n", name, c.PageCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", ".", "directory for the chunk files")
	cmd.Flags().IntVar(&pages, "pages", 0, "pages per chunk (overrides EXTRACTION_PAGES_PER_CHUNK)")
	return cmd
}

type convertOptions struct {
	format string
	outDir string
	track  bool
	asJSON bool
	userID string
	email  string
}

func newConvertCmd(a *app) *cobra.Command {
	opts := convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert <statement.pdf>...",
		Short: "Redact statements and extract their transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := statement.ParseFormat(opts.format)
			if err != nil {
				return err
			}
			if opts.outDir != "" {
				a.cfg.Storage.LocalPath = opts.outDir
			}
			if opts.track {
				return convertTracked(cmd, a, opts, format, args)
			}

			deps, err := InitDependencies(cmd.Context(), a.cfg, a.logger, Needs{Extraction: true, Storage: true})
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			var errs []error
			for _, in := range args {
				data, err := os.ReadFile(in)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				res, err := convertFile(cmd.Context(), deps.Pipeline, deps.FileStorage, filepath.Base(in), data, format, time.Now())
				if err != nil {
					a.logger.Error("conversion failed", slog.String("file", in), slog.Any("error", err))
					errs = append(errs, fmt.Errorf("%s: %w", in, err))
					continue
				}
				if opts.asJSON {
					if err := printConversionJSON(cmd.OutOrStdout(), in, res); err != nil {
						errs = append(errs, err)
					}
					continue
				}
				printConversion(cmd.OutOrStdout(), in, res)
			}
			return errors.Join(errs...)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.format, "format", "f", "csv", "output format: csv or xlsx")
	flags.StringVarP(&opts.outDir, "output-dir", "o", "", "artifact directory (overrides STORAGE_LOCAL_PATH)")
	flags.BoolVar(&opts.track, "track", false, "record the conversions as jobs in Postgres")
	flags.BoolVar(&opts.asJSON, "json", false, "print one JSON summary per statement")
	flags.StringVar(&opts.userID, "user", "", "owner user id for --track")
	flags.StringVar(&opts.email, "email", "", "email notified when tracked conversions are ready")
	return cmd
}

// converted is the result of a local, untracked conversion.
type converted struct {
	Conversion  *service.Conversion
	Rasterized  bool
	RedactedKey string
	Output      *storage.FileInfo
}

// convertFile runs one statement through the pipeline and stores the
// redacted PDF and the output file.
func convertFile(ctx context.Context, p *service.Pipeline, store storage.Storage, name string, data []byte, format statement.Format, now time.Time) (*converted, error) {
	doc := extraction.Document{ID: uuid.NewString(), Name: name}

	red, err := p.Redact(ctx, name, data)
	if err != nil {
		return nil, err
	}
	redactedKey := transaction.RedactedKey(doc.ID, name)
	if _, err := store.Put(ctx, redactedKey, "application/pdf", bytes.NewReader(red.Data)); err != nil {
		return nil, fmt.Errorf("failed to store redacted pdf: %w", err)
	}

	conv, err := p.Convert(ctx, doc, red.Data, format, now)
	if err != nil {
		return nil, err
	}
	info, err := store.Put(ctx, conv.Filename, format.ContentType(), bytes.NewReader(conv.Output))
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", conv.Filename, err)
	}
	return &converted{
		Conversion:  conv,
		Rasterized:  red.Rasterized,
		RedactedKey: redactedKey,
		Output:      info,
	}, nil
}

func printConversion(w io.Writer, in string, res *converted) {
	s := res.Conversion.Summary
	fmt.Fprintf(w, "%s -> %s\n", in, res.Output.Key)
	fmt.Fprintf(w, "  rows=%d duplicates=%d debit=%s credit=%s net=%s\n",
		s.Count, res.Conversion.Duplicates, s.TotalDebit.Display(), s.TotalCredit.Display(), s.Net.Display())
	if s.FirstDate != "" {
		fmt.Fprintf(w, "  period=%s..%s\n", s.FirstDate, s.LastDate)
	}
	fmt.Fprintf(w, "  redacted=%s rasterized=%t\n", res.RedactedKey, res.Rasterized)
}

// conversionReport is the --json form of a local conversion.
type conversionReport struct {
	Input      string              `json:"input"`
	Output     string              `json:"output"`
	Redacted   string              `json:"redacted"`
	Rasterized bool                `json:"rasterized"`
	Duplicates int                 `json:"duplicates"`
	Summary    transaction.Summary `json:"summary"`
}

func printConversionJSON(w io.Writer, in string, res *converted) error {
	return json.NewEncoder(w).Encode(conversionReport{
		Input:      in,
		Output:     res.Output.Key,
		Redacted:   res.RedactedKey,
		Rasterized: res.Rasterized,
		Duplicates: res.Conversion.Duplicates,
		Summary:    res.Conversion.Summary,
	})
}

func convertTracked(cmd *cobra.Command, a *app, opts convertOptions, format statement.Format, args []string) error {
	userID, err := uuid.Parse(opts.userID)
	if err != nil {
		return fmt.Errorf("--user must be a uuid: %w", err)
	}

	deps, err := InitDependencies(cmd.Context(), a.cfg, a.logger, Needs{Extraction: true, Jobs: true})
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	uploads := make([]service.Upload, 0, len(args))
	for _, in := range args {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		uploads = append(uploads, service.Upload{Filename: filepath.Base(in), Data: data, Format: format})
	}

	result, err := deps.StatementService.Submit(cmd.Context(), service.Owner{UserID: userID, Email: opts.email}, uploads)
	if err != nil {
		return err
	}
	deps.Metrics.JobsFinished(result.Succeeded(), result.Failed())

	w := cmd.OutOrStdout()
	var errs []error
	for _, o := range result.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "%s: job %s failed: %v\n", o.Job.OriginalFilename, o.Job.ID, o.Err)
			errs = append(errs, o.Err)
			continue
		}
		fmt.Fprintf(w, "%s: job %s ready, file %s (%s, %d rows, %d duplicates)\n",
			o.Job.OriginalFilename, o.Job.ID, o.FileID, o.Filename, o.Transactions, o.Duplicates)
	}
	return errors.Join(errs...)
}
