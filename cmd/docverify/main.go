package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	docverifier "github.com/menta2k/document-verifier"
	"github.com/menta2k/document-verifier/internal/config"
	"github.com/menta2k/document-verifier/internal/logger"
	"github.com/menta2k/document-verifier/internal/transport"
	"github.com/menta2k/document-verifier/internal/utils"
	"github.com/menta2k/document-verifier/pkg/report"
	"github.com/menta2k/document-verifier/pkg/types"
)

type options struct {
	in          string
	outDir      string
	configFile  string
	backend     string
	model       string
	url         string
	format      string
	serve       bool
	retries     int
	concurrency int
	timeout     time.Duration
}

// registerFlags binds the command-line flags to opts
func registerFlags(fs *flag.FlagSet, opts *options) {
	fs.StringVar(&opts.in, "in", "", "input document: image path, http(s) URL or directory (jpg/jpeg/png/webp)")
	fs.StringVar(&opts.outDir, "out", "", "write one report per input into this directory instead of stdout")
	fs.StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	fs.StringVar(&opts.backend, "backend", "", "reasoning service: anthropic, ollama or llamacpp")
	fs.StringVar(&opts.model, "model", "", "model name (backend default when empty)")
	fs.StringVar(&opts.url, "url", "", "backend URL (backend default when empty)")
	fs.StringVar(&opts.format, "format", "text", "report format: text|json")
	fs.BoolVar(&opts.serve, "serve", false, "run the HTTP server instead of analyzing -in")
	fs.IntVar(&opts.retries, "retries", 0, "total attempts per document, 1 disables retries (config default when 0)")
	fs.IntVar(&opts.concurrency, "concurrency", 4, "documents analyzed in parallel for directory input")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-document timeout, 0 for none")
}

func main() {
	var opts options

	registerFlags(flag.CommandLine, &opts)
	flag.Parse()
	if opts.format != "text" && opts.format != "json" {
		logger.Logger.Fatalf("unknown -format %q (use text or json)", opts.format)
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		logger.Logger.Fatal(err)
	}
	applyFlags(flag.CommandLine, cfg, opts)
	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		logger.Logger.Fatalf("invalid configuration: %v", err)
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		logger.Logger.Fatal(err)
	}

	if opts.serve {
		if err := serve(cfg, verifier); err != nil {
			logger.Logger.Fatal(err)
		}
		return
	}

	if opts.in == "" {
		logger.Logger.Fatalf("usage: %s -in document.jpg|URL|dir [-backend anthropic|ollama|llamacpp] [-format text|json] [-out dir] | -serve",
			filepath.Base(os.Args[0]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if utils.DirExists(opts.in) {
		failed, err := analyzeDir(ctx, verifier, opts)
		if err != nil {
			logger.Logger.Fatal(err)
		}
		if failed > 0 {
			logger.Logger.Errorf("%d document(s) could not be analyzed", failed)
			os.Exit(1)
		}
		return
	}

	if err := analyzeOne(ctx, verifier, opts, opts.in); err != nil {
		logger.WithError(err).WithField("kind", types.Kind(err)).Error("analysis failed")
		os.Exit(1)
	}
}

// applyFlags lets explicitly set flags override file and environment configuration
func applyFlags(fs *flag.FlagSet, cfg *config.Config, opts options) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend.Name = opts.backend
		case "model":
			cfg.Backend.Model = opts.model
		case "url":
			cfg.Backend.URL = opts.url
		case "retries":
			if opts.retries > 0 {
				cfg.Retry.MaxAttempts = opts.retries
			}
		}
	})
}

func newVerifier(cfg *config.Config) (*docverifier.Verifier, error) {
	encCfg, err := cfg.EncoderConfig()
	if err != nil {
		return nil, err
	}
	return docverifier.NewFromConfig(cfg.ClientConfig(), docverifier.Options{
		Encoder:    encCfg,
		Processing: cfg.ProcessingConfig(),
		Retry:      cfg.RetryPolicyConfig(),
	})
}

func serve(cfg *config.Config, v *docverifier.Verifier) error {
	handler := transport.NewHandler(v, v, transport.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Image.MaxBytes,
		Backend:        v.Backend(),
		Version:        docverifier.Version,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    cfg.Server.Port,
			"backend": v.Backend(),
			"version": docverifier.Version,
		}).Info("Starting document verification server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func analyzeOne(ctx context.Context, v *docverifier.Verifier, opts options, source string) error {
	var out bytes.Buffer
	if err := analyzeTo(ctx, v, opts, "", source, &out); err != nil {
		return err
	}
	_, err := os.Stdout.Write(out.Bytes())
	return err
}

// analyzeDir analyzes every document under opts.in with bounded concurrency.
// A failed document is logged and counted; it does not stop the others.
func analyzeDir(ctx context.Context, v *docverifier.Verifier, opts options) (int, error) {
	files, err := utils.ListImageFiles(opts.in)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", opts.in, err)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no jpg, png or webp documents found in %s", opts.in)
	}

	concurrency := opts.concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu     sync.Mutex
		failed int
	)

	var g errgroup.Group
	g.SetLimit(concurrency)

	for _, file := range files {
		g.Go(func() error {
			fields := logrus.Fields{"file": file}
			if info, err := os.Stat(file); err == nil {
				fields["size"] = utils.FormatFileSize(info.Size())
			}

			var out bytes.Buffer
			err := analyzeTo(ctx, v, opts, opts.in, file, &out)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.WithError(err).WithFields(fields).WithField("kind", types.Kind(err)).Error("analysis failed")
				return nil
			}
			logger.WithFields(fields).Debug("analysis finished")
			if out.Len() > 0 {
				fmt.Printf("== %s ==\n%s\n", file, out.String())
			}
			return nil
		})
	}

	// workers never return errors, failures are counted instead
	_ = g.Wait()
	return failed, ctx.Err()
}

// analyzeTo writes either to outDir or, for stdout output, into out.
// Reports for inputs under root mirror their path relative to root.
func analyzeTo(ctx context.Context, v *docverifier.Verifier, opts options, root, source string, out *bytes.Buffer) error {
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	result, err := v.AnalyzeFile(ctx, source)
	if err != nil {
		return err
	}

	if opts.outDir == "" {
		return report.Write(out, opts.format, result)
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, opts.format, result); err != nil {
		return err
	}
	path := utils.ReportFilename(source, root, opts.outDir, opts.format)
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.WithField("path", path).Info("wrote report")
	return nil
}
