// ABOUTME: Minimal fake exploration agent for E2E testing over HTTP
// ABOUTME: Usage: fake-explorer [-addr localhost:8090] [-steps 50] [-crash-every 7] [-log fastbot.log]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/2389/coven-explore/internal/agent"
)

const (
	homeScreen = `<hierarchy rotation="0"><node index="0" text="Notes" resource-id="com.example.app:id/title" class="android.widget.TextView" package="com.example.app"/><node index="1" text="New note" resource-id="com.example.app:id/fab" class="android.widget.Button" package="com.example.app" clickable="true"/></hierarchy>`
	crashScreen = `<hierarchy rotation="0"><node index="0" text="Notes keeps stopping" resource-id="android:id/alertTitle" class="android.widget.TextView" package="android"/><node index="1" text="Close app" resource-id="android:id/aerr_close" class="android.widget.Button" package="android" clickable="true"/></hierarchy>`
)

type fakeExplorer struct {
	steps      int
	crashEvery int
	fatalAt    int
	root       string
	logPath    string

	mu        sync.Mutex
	outputDir string
	step      int
	screens   bool
	logFile   *os.File
}

func main() {
	addr := flag.String("addr", "localhost:8090", "HTTP listen address")
	steps := flag.Int("steps", 50, "steps before the session ends")
	crashEvery := flag.Int("crash-every", 7, "show a crash dialog every N steps (0 disables)")
	fatalAt := flag.Int("fatal-at", 0, "write an internal error to the log at this step (0 disables)")
	root := flag.String("remote", "", "directory standing in for device storage (default: temp dir)")
	logPath := flag.String("log", "output/fastbot.log", "agent log file watched by the explorer")
	flag.Parse()

	if err := run(*addr, *steps, *crashEvery, *fatalAt, *root, *logPath); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, steps, crashEvery, fatalAt int, root, logPath string) error {
	if root == "" {
		dir, err := os.MkdirTemp("", "fake-explorer-")
		if err != nil {
			return fmt.Errorf("creating remote dir: %w", err)
		}
		root = dir
	}

	f := &fakeExplorer{
		steps:      steps,
		crashEvery: crashEvery,
		fatalAt:    fatalAt,
		root:       root,
		logPath:    logPath,
	}
	defer f.closeLog()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", f.handlePing)
	mux.HandleFunc("POST /init", f.handleInit)
	mux.HandleFunc("POST /step", f.handleStep)
	mux.HandleFunc("GET /stop", f.handleStop)
	mux.HandleFunc("POST /logScript", f.handleLogScript)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "fake explorer listening on %s (remote dir %s)\n", addr, root)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func (f *fakeExplorer) handlePing(w http.ResponseWriter, r *http.Request) {
	reply(w, "pong")
}

func (f *fakeExplorer) handleInit(w http.ResponseWriter, r *http.Request) {
	var opts agent.InitOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.outputDir = filepath.Join(f.root, "output_"+opts.LogStamp)
	f.screens = opts.TakeScreenshots
	f.step = 0
	if err := os.MkdirAll(filepath.Join(f.outputDir, "screenshots"), 0755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.logPath), 0755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	lf, err := os.OpenFile(f.logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	f.logFile = lf

	log.Printf("init: packages=%v minutes=%d throttle=%dms", opts.PackageNames, opts.RunningMinutes, opts.ThrottleMillis)
	f.logf("[Fastbot] exploration started for %v\n", opts.PackageNames)
	reply(w, f.outputDir)
}

func (f *fakeExplorer) handleStep(w http.ResponseWriter, r *http.Request) {
	var req agent.StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step >= f.steps {
		// Time is up: drop the connection like the real agent does.
		f.logf("// Monkey is over!\nTotal events: %d, Dropped: 0\n", f.step)
		f.hangUp(w)
		return
	}
	f.step++

	if f.fatalAt > 0 && f.step == f.fatalAt {
		f.logf("[Fastbot] *** Internal error\nnative crash at step %d\n", f.step)
	}
	f.logf("[Fastbot] step %d blocked=%d\n", f.step, len(req.BlockWidgets)+len(req.BlockTrees))
	f.writeArtifacts()

	screen := homeScreen
	if f.crashEvery > 0 && f.step%f.crashEvery == 0 {
		screen = crashScreen
	}
	reply(w, screen)
}

func (f *fakeExplorer) handleStop(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log.Printf("stop after %d steps", f.step)
	reply(w, "stopped")
}

func (f *fakeExplorer) handleLogScript(w http.ResponseWriter, r *http.Request) {
	var ev agent.ScriptEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	line, _ := json.Marshal(map[string]any{"Type": "ScriptInfo", "Info": ev, "Step": f.step})
	f.appendFile(filepath.Join(f.outputDir, "steps.log"), append(line, '\n'))
	log.Printf("script %s: %s", ev.Name, ev.Phase)
	reply(w, "ok")
}

// writeArtifacts drops a step log line and, when enabled, a screenshot.
func (f *fakeExplorer) writeArtifacts() {
	if f.outputDir == "" {
		return
	}
	line, _ := json.Marshal(map[string]any{"Type": "Monkey", "Step": f.step})
	f.appendFile(filepath.Join(f.outputDir, "steps.log"), append(line, '\n'))
	if f.screens {
		name := filepath.Join(f.outputDir, "screenshots", fmt.Sprintf("screen_%04d.png", f.step))
		if err := os.WriteFile(name, []byte("\x89PNG\r\n\x1a\n"), 0644); err != nil {
			log.Printf("screenshot: %v", err)
		}
	}
}

func (f *fakeExplorer) appendFile(path string, data []byte) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("append %s: %v", path, err)
		return
	}
	defer fh.Close()
	if _, err := fh.Write(data); err != nil {
		log.Printf("append %s: %v", path, err)
	}
}

func (f *fakeExplorer) logf(format string, args ...any) {
	if f.logFile == nil {
		return
	}
	fmt.Fprintf(f.logFile, format, args...)
}

func (f *fakeExplorer) hangUp(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "session over", http.StatusGone)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}

func (f *fakeExplorer) closeLog() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logFile != nil {
		_ = f.logFile.Close()
	}
}
