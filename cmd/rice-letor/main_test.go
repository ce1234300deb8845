package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ricesearch/rice-letor/internal/config"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/sink"
)

func TestApplyRunFlags(t *testing.T) {
	cmd := runCmd()
	err := cmd.ParseFlags([]string{
		"--provider", "bleve",
		"--uri", "/tmp/idx",
		"--num-ret", "5,10",
		"--threads", "4",
		"--final-extractor", "tfidf+embed",
		"--add-rank-scores",
		"--embed-files", "a.txt,b.txt",
	})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Output.RunDir = "from-config"
	applyRunFlags(cmd.Flags(), cfg)

	if cfg.Provider.Type != "bleve" || cfg.Provider.URI != "/tmp/idx" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Retrieval.NumRet != "5,10" || cfg.Workers.Threads != 4 {
		t.Errorf("num_ret=%q threads=%d", cfg.Retrieval.NumRet, cfg.Workers.Threads)
	}
	if cfg.Letor.Final.Extractor != "tfidf+embed" || !cfg.Letor.Final.AddRankScores {
		t.Errorf("final stage = %+v", cfg.Letor.Final)
	}
	if len(cfg.Resources.EmbedFiles) != 2 {
		t.Errorf("embed files = %v", cfg.Resources.EmbedFiles)
	}
	if cfg.Output.RunDir != "from-config" {
		t.Errorf("unset flag overrode run_dir: %q", cfg.Output.RunDir)
	}
	if cfg.Retrieval.MinRelevGrade != 1 {
		t.Errorf("unset flag overrode min_relev_grade: %d", cfg.Retrieval.MinRelevGrade)
	}
}

func TestRunCmd_ConfigError(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--provider", "lucene", "--num-ret", "ten"})

	_, err := root.ExecuteContextC(context.Background())
	if !apperrors.IsConfig(err) {
		t.Fatalf("Execute() error = %v, want config error", err)
	}
	if apperrors.ExitCode(err) != apperrors.ExitConfig {
		t.Errorf("exit code = %d, want %d", apperrors.ExitCode(err), apperrors.ExitConfig)
	}
	for _, want := range []string{"wrong candidate record provider type", "number of candidates isn't integer"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestIndexThenRun(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs.txt")
	queries := filepath.Join(dir, "queries.txt")
	idx := filepath.Join(dir, "index")
	runDir := filepath.Join(dir, "runs")
	stat := filepath.Join(dir, "stat.tsv")

	writeFile(t, docs, `<DOC>
<DOCNO>d1</DOCNO>
<text>the cat sat on the mat</text>
</DOC>
<DOC>
<DOCNO>d2</DOCNO>
<text>an unrelated document about cars</text>
</DOC>
`)
	writeFile(t, queries, `<DOC>
<DOCNO>q1</DOCNO>
<text>cars</text>
</DOC>
`)

	root := newRootCmd()
	root.SetArgs([]string{"index", "--docs", docs, "--index", idx, "--log-level", "error"})
	if _, err := root.ExecuteContextC(context.Background()); err != nil {
		t.Fatalf("index error = %v", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"run",
		"--provider", "bleve", "--uri", idx,
		"--queries", queries, "--num-ret", "1,3",
		"--run-dir", runDir, "--run-name", "t",
		"--stat-file", stat, "--log-level", "error",
	})
	if _, err := root.ExecuteContextC(context.Background()); err != nil {
		t.Fatalf("run error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(runDir, sink.RunFileName(1)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "q1 Q0 d2 1 ") {
		t.Errorf("run file = %q", data)
	}
	if _, err := os.Stat(stat); err != nil {
		t.Errorf("stat file missing: %v", err)
	}
}

func TestRun_ErrorLoggedOnce(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs.txt")
	queries := filepath.Join(dir, "queries.txt")
	idx := filepath.Join(dir, "index")

	writeFile(t, docs, "<DOC>\n<DOCNO>d1</DOCNO>\n<text>cars</text>\n</DOC>\n")
	writeFile(t, queries, "<DOC>\n<text>no id</text>\n</DOC>\n")

	var logs bytes.Buffer
	logOutput = &logs
	t.Cleanup(func() { logOutput = os.Stderr })

	root := newRootCmd()
	root.SetArgs([]string{"index", "--docs", docs, "--index", idx})
	if _, err := root.ExecuteContextC(context.Background()); err != nil {
		t.Fatalf("index error = %v", err)
	}

	logs.Reset()
	root = newRootCmd()
	root.SetArgs([]string{"run",
		"--provider", "bleve", "--uri", idx,
		"--queries", queries, "--num-ret", "1",
		"--sink", "none",
	})
	_, err := root.ExecuteContextC(context.Background())
	if !apperrors.HasCode(err, apperrors.CodeParse) {
		t.Fatalf("run error = %v, want parse error", err)
	}
	if apperrors.ExitCode(err) != apperrors.ExitFatal {
		t.Errorf("exit code = %d, want %d", apperrors.ExitCode(err), apperrors.ExitFatal)
	}
	if strings.Contains(logs.String(), err.Error()) {
		t.Errorf("returned error was also logged:\n%s", logs.String())
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
