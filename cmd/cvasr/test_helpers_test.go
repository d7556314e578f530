package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jye-lim/wav2vec2-asr/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	dataDir    string
	outputDir  string
	gateway    *httptest.Server
	elastic    *testsupport.FakeElastic
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{"CVASR_INFER_URL", "CVASR_SEARCH_URL", "CVASR_MODEL_URL", "ELASTICSEARCH_URL", "ELASTIC_PASSWORD"} {
		t.Setenv(key, "")
	}

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		dataDir:    filepath.Join(base, "data"),
		outputDir:  filepath.Join(base, "output"),
		gateway:    newFakeGateway(t),
		elastic:    testsupport.NewFakeElastic(t),
	}
	if err := os.MkdirAll(env.dataDir, 0o755); err != nil {
		t.Fatalf("mkdir data: %v", err)
	}

	content := fmt.Sprintf(`[paths]
data_dir = %q
output_dir = %q
log_dir = %q

[gateway]
infer_url = %q

[search]
url = %q

[ledger]
path = %q

[logging]
level = "error"
`,
		env.dataDir,
		env.outputDir,
		filepath.Join(base, "logs"),
		env.gateway.URL+"/asr",
		env.elastic.URL(),
		filepath.Join(base, "ledger", "runs.db"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

// newFakeGateway answers /asr with the upper-cased upload body.
func newFakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "pong"})
	})
	mux.HandleFunc("/asr", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"transcription": strings.ToUpper(string(data)),
			"duration":      "1.00",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// writeCorpus lays down a manifest with two present audio files and one missing.
func (e *cliTestEnv) writeCorpus(t *testing.T) string {
	t.Helper()
	manifestPath := filepath.Join(e.dataDir, "cv-valid-dev.csv")
	testsupport.WriteFile(t, manifestPath, []byte("filename,text,up_votes,down_votes,age,gender,accent,duration\n"+
		"cv-valid-dev/sample-000000.mp3,hello world,1,0,twenties,female,us,\n"+
		"cv-valid-dev/sample-000001.mp3,missing file,1,0,,,,\n"+
		"cv-valid-dev/sample-000002.mp3,good morning,2,0,,male,,\n"))
	testsupport.WriteFile(t, filepath.Join(e.dataDir, "cv-valid-dev", "sample-000000.mp3"), []byte("hello world"))
	testsupport.WriteFile(t, filepath.Join(e.dataDir, "cv-valid-dev", "sample-000002.mp3"), []byte("good morning"))
	return manifestPath
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
