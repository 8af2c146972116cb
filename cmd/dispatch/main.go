package main

// Send one batch from the command line:
//   go run ./cmd/dispatch -recipients list.csv -resume cv.pdf -name "Sam" -email sam@example.com
//   go run ./cmd/dispatch -recipients list.xlsx -dry-run

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"applypilot-backend/internal/bootstrap"
	"applypilot-backend/internal/delivery"
	"applypilot-backend/internal/dispatch"
	"applypilot-backend/internal/recipients"
	"applypilot-backend/internal/resumes"
	"applypilot-backend/internal/shared/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("dispatch: %v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("dispatch", flag.ContinueOnError)
	recipientsPath := fs.String("recipients", "", "recipient spreadsheet (.xlsx or .csv)")
	resumePath := fs.String("resume", "", "resume file (.pdf, .doc, .docx or .txt)")
	name := fs.String("name", "", "sender name")
	email := fs.String("email", "", "sender email")
	dryRun := fs.Bool("dry-run", false, "validate inputs and print the recipients without sending")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *recipientsPath == "" {
		return errors.New("-recipients is required")
	}

	cfg := config.Load()
	records, err := loadRecipients(ctx, cfg, *recipientsPath)
	if err != nil {
		return err
	}
	if *dryRun {
		return writeJSON(out, map[string]any{"total": len(records), "recipients": records})
	}

	if *resumePath == "" {
		return dispatch.ErrNoResume
	}
	if cfg.DeliveryProvider == "gmail" {
		return errors.New("gmail delivery needs a signed-in session; use the API server")
	}
	asset, data, err := loadResume(*resumePath)
	if err != nil {
		return err
	}

	runner, err := bootstrap.BuildRunner(ctx, cfg, nil)
	if err != nil {
		return err
	}
	text := (&resumes.Service{ExtractText: cfg.ResumeTextExtract}).Text(ctx, asset, data)
	summary, err := runner.Run(ctx, dispatch.Batch{
		Sender:      delivery.Sender{Name: *name, Email: *email},
		Recipients:  records,
		Resume:      &asset,
		ResumeBytes: data,
		ResumeText:  text,
	})
	if err != nil {
		return err
	}
	return writeJSON(out, summary)
}

func loadRecipients(ctx context.Context, cfg config.Config, path string) ([]recipients.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if cfg.SpreadsheetMaxBytes > 0 && info.Size() > cfg.SpreadsheetMaxBytes {
		return nil, recipients.ErrTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return recipients.Parse(ctx, filepath.Base(path), data)
}

func loadResume(path string) (resumes.Asset, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return resumes.Asset{}, nil, err
	}
	name := filepath.Base(path)
	mediaType, err := resumes.Validate(name, int64(len(data)), "")
	if err != nil {
		return resumes.Asset{}, nil, fmt.Errorf("%s: %w", name, err)
	}
	return resumes.Asset{FileName: name, SizeBytes: int64(len(data)), MediaType: mediaType}, data, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
