package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"applypilot-backend/internal/dispatch"
	"applypilot-backend/internal/recipients"
)

const sheet = "Name,Email,Company,JobTitle\nJane Doe,jane@x.com,Acme,Engineer\nJohn Roe,john@x.com,Beta,Designer\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ENV", "dev")
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("DELIVERY_PROVIDER", "http")
	t.Setenv("DELIVERY_URL", "")
	return dir
}

func TestRunDryRunPrintsRecipients(t *testing.T) {
	dir := isolate(t)
	list := writeFile(t, dir, "list.csv", sheet)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-recipients", list, "-dry-run"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var got struct {
		Total      int                 `json:"total"`
		Recipients []recipients.Record `json:"recipients"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 2 || got.Recipients[1].Company != "Beta" {
		t.Fatalf("unexpected output %s", out.String())
	}
}

func TestRunWithoutProvidersCountsFailures(t *testing.T) {
	dir := isolate(t)
	list := writeFile(t, dir, "list.csv", sheet)
	cv := writeFile(t, dir, "cv.txt", "Sam Sender\nGo engineer")

	var out bytes.Buffer
	err := run(context.Background(), []string{"-recipients", list, "-resume", cv, "-name", "Sam", "-email", "sam@x.com"}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var sum dispatch.Summary
	if err := json.Unmarshal(out.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Total != 2 || sum.Sent != 0 || sum.Failed != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Outcomes[0].Status != dispatch.StatusGenerationFailed {
		t.Fatalf("expected generation failure, got %+v", sum.Outcomes[0])
	}
}

func TestRunInputErrors(t *testing.T) {
	dir := isolate(t)
	list := writeFile(t, dir, "list.csv", sheet)
	bad := writeFile(t, dir, "bad.csv", "Name,Email,Company,JobTitle\nJane,,Acme,Engineer\n")
	png := writeFile(t, dir, "photo.png", "png")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "invalid row", args: []string{"-recipients", bad, "-dry-run"}, want: recipients.ErrInvalidRow},
		{name: "no resume", args: []string{"-recipients", list}, want: dispatch.ErrNoResume},
		{name: "bad resume type", args: []string{"-recipients", list, "-resume", png}},
		{name: "missing recipients flag", args: []string{"-dry-run"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.args, &bytes.Buffer{})
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
