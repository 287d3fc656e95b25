package blackbox

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"inferd/internal/gguf"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	cleanup := func() { _ = ln.Close() }
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port, cleanup
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	bbDir := filepath.Dir(thisFile)
	return filepath.Dir(filepath.Dir(bbDir))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	root := projectRootFromThisFile(t)
	outDir := t.TempDir()
	binPath := filepath.Join(outDir, "inferd")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/inferd")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// createModelDir writes a minimal valid GGUF file and a tokenizer.json with
// the given vocabulary so the server starts ready with the echo backend.
func createModelDir(t *testing.T, words ...string) string {
	t.Helper()
	dir := t.TempDir()

	var buf bytes.Buffer
	w32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }
	w64 := func(v uint64) { binary.Write(&buf, binary.LittleEndian, v) }
	ws := func(s string) { w64(uint64(len(s))); buf.WriteString(s) }
	w32(gguf.Magic)
	w32(3)
	w64(0)
	w64(1)
	ws("general.architecture")
	w32(uint32(gguf.TypeString))
	ws("llama")
	if err := os.WriteFile(filepath.Join(dir, "tiny.gguf"), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	vocab := map[string]int{}
	for i, w := range words {
		vocab[w] = i
	}
	doc := map[string]any{
		"model":        map[string]any{"type": "BPE", "vocab": vocab},
		"added_tokens": []map[string]any{{"id": len(vocab), "content": "<unk>"}},
	}
	b, _ := json.Marshal(doc)
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), b, 0o644); err != nil {
		t.Fatalf("write tokenizer: %v", err)
	}
	return dir
}

type serverProc struct {
	cmd  *exec.Cmd
	base string // http base URL, e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin, modelPath, modelsDir string, port int) *serverProc {
	t.Helper()
	addr := fmt.Sprintf(":%d", port)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := []string{"serve", "--addr", addr, "--backend", "echo"}
	if modelPath != "" {
		args = append(args, "--model", modelPath)
	}
	if modelsDir != "" {
		args = append(args, "--models-dir", modelsDir)
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	// Wait for healthz
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	sp := &serverProc{cmd: cmd, base: base}
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return sp
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	modelDir := createModelDir(t, "hello", "world")
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, filepath.Join(modelDir, "tiny.gguf"), modelDir, port)

	// /healthz
	resp, body := get(t, sp.base+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz %d %s", resp.StatusCode, string(body))
	}

	// /readyz: model and tokenizer loaded at startup
	resp, body = get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz %d %s", resp.StatusCode, string(body))
	}

	// /models lists the scanned directory
	resp, body = get(t, sp.base+"/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/models %d %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/models content-type=%s", ct)
	}
	var modelsResp struct {
		Models []struct {
			ID string `json:"id"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		t.Fatalf("/models json: %v body=%s", err, string(body))
	}
	if len(modelsResp.Models) != 1 || modelsResp.Models[0].ID != "tiny" {
		t.Fatalf("expected model tiny, got %+v", modelsResp.Models)
	}

	// /generate echoes the prompt with the echo backend
	resp, body = postJSON(t, sp.base+"/generate", []byte(`{"prompt":"hello world"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/generate %d %s", resp.StatusCode, string(body))
	}
	var genResp struct {
		Text         string `json:"text"`
		PromptTokens int    `json:"prompt_tokens"`
	}
	if err := json.Unmarshal(body, &genResp); err != nil {
		t.Fatalf("/generate json: %v body=%s", err, string(body))
	}
	if genResp.Text != "hello world" || genResp.PromptTokens != 2 {
		t.Fatalf("/generate got %+v", genResp)
	}

	// /generate/stream returns newline-delimited chunks ending with done
	resp, body = postJSON(t, sp.base+"/generate/stream", []byte(`{"prompt":"hello world"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/generate/stream %d %s", resp.StatusCode, string(body))
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) < 2 {
		t.Fatalf("/generate/stream expected chunk lines plus done, got %q", string(body))
	}
	var last struct {
		Done bool `json:"done"`
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil || !last.Done {
		t.Fatalf("/generate/stream last line = %q, err=%v", lines[len(lines)-1], err)
	}

	// /stats counts the generation
	resp, body = get(t, sp.base+"/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/stats %d %s", resp.StatusCode, string(body))
	}
	var statsResp struct {
		Generations uint64 `json:"generations"`
	}
	if err := json.Unmarshal(body, &statsResp); err != nil {
		t.Fatalf("/stats json: %v body=%s", err, string(body))
	}
	if statsResp.Generations < 1 {
		t.Fatalf("expected generations >=1, got %d", statsResp.Generations)
	}

	// /metrics exposes the HTTP counters
	resp, body = get(t, sp.base+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("inferd_http_requests_total")) {
		t.Fatalf("/metrics missing http counter")
	}
}

func TestBlackbox_EmptyPrompt_400(t *testing.T) {
	bin := buildBinary(t)
	modelDir := createModelDir(t, "hello")
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, filepath.Join(modelDir, "tiny.gguf"), "", port)

	resp, body := postJSON(t, sp.base+"/generate", []byte(`{"prompt":"   "}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body=%s", resp.StatusCode, string(body))
	}
}

func TestBlackbox_NoModel_NotReady_503(t *testing.T) {
	bin := buildBinary(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, "", "", port)

	resp, body := get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz expected 503, got %d, body=%s", resp.StatusCode, string(body))
	}
	resp, body = postJSON(t, sp.base+"/generate", []byte(`{"prompt":"hi"}`))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/generate expected 503, got %d, body=%s", resp.StatusCode, string(body))
	}
}
