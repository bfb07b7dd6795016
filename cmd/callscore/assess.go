package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/callscore/internal/pipeline"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

type assessOptions struct {
	files          []string
	language       string
	concurrency    int
	finalSentiment bool
	compact        bool
}

// fileResult is one line of batch output.
type fileResult struct {
	File   string                   `json:"file"`
	Result *models.AssessmentResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func newAssessCmd(root *rootOptions) *cobra.Command {
	opts := &assessOptions{}
	cmd := &cobra.Command{
		Use:   "assess --file call.json [--file other.json ...]",
		Short: "Assess call transcripts",
		Long: `Assess one or more call transcripts with the keyword pipeline.

Each file holds either a JSON array of utterances or a transcript object
with "segments", "language" and "duration". Use "-" to read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssess(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.files, "file", "f", nil, "transcript file, repeatable")
	f.StringVarP(&opts.language, "language", "l", "", "language code overriding the transcript's")
	f.IntVar(&opts.concurrency, "concurrency", 4, "calls assessed in parallel")
	f.BoolVar(&opts.finalSentiment, "final-sentiment", false, "let the customer's closing sentiment adjust resolution")
	f.BoolVar(&opts.compact, "compact", false, "print compact JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runAssess(cmd *cobra.Command, root *rootOptions, opts *assessOptions) error {
	lex, err := root.loadLexicon()
	if err != nil {
		return err
	}
	assessor, err := pipeline.New(lex, pipeline.WithFinalSentiment(opts.finalSentiment))
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	calls := make([]pipeline.Call, 0, len(opts.files))
	for _, path := range opts.files {
		c, err := readCall(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		if opts.language != "" {
			c.Language = opts.language
		}
		calls = append(calls, c)
	}

	results := assessor.AssessBatch(cmd.Context(), calls, opts.concurrency)

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !opts.compact {
		enc.SetIndent("", "  ")
	}

	if len(results) == 1 {
		if results[0].Err != nil {
			return fmt.Errorf("%s: %w", results[0].ID, results[0].Err)
		}
		return enc.Encode(results[0].Result)
	}

	out := make([]fileResult, len(results))
	failed := 0
	for i, r := range results {
		out[i] = fileResult{File: r.ID, Result: r.Result}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			failed++
		}
	}
	if err := enc.Encode(out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(results))
	}
	return nil
}

// readCall loads a transcript file. "-" reads stdin.
func readCall(stdin io.Reader, path string) (pipeline.Call, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return pipeline.Call{}, fmt.Errorf("read %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return pipeline.Call{}, fmt.Errorf("read %s: %w", path, errors.New("empty file"))
	}

	if data[0] == '[' {
		var utts []models.Utterance
		if err := json.Unmarshal(data, &utts); err != nil {
			return pipeline.Call{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return pipeline.Call{ID: path, Utterances: utts}, nil
	}

	var t models.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return pipeline.Call{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return pipeline.Call{ID: path, Utterances: t.Segments, Language: t.Language, Duration: t.Duration}, nil
}
