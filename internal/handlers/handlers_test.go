package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ipfsgate/ipfsgate/internal/cas"
	"github.com/ipfsgate/ipfsgate/internal/clientip"
	"github.com/ipfsgate/ipfsgate/internal/config"
	"github.com/ipfsgate/ipfsgate/internal/index"
	"github.com/ipfsgate/ipfsgate/internal/multipart"
)

// fakeCAS emulates the storage node's RPC surface and records the calls
// the handlers make against it.
type fakeCAS struct {
	mu         sync.Mutex
	objects    map[string][]byte
	pinRmCalls map[string]int
	filesRm    []string
	srv        *httptest.Server
}

func newFakeCAS(t *testing.T) *fakeCAS {
	t.Helper()
	f := &fakeCAS{
		objects:    make(map[string][]byte),
		pinRmCalls: make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

// fakeCID derives a deterministic CID from content so identical bytes
// collide the way a real CAS node would make them.
func fakeCID(content []byte) string {
	sum := sha256.Sum256(content)
	return "Qm" + hex.EncodeToString(sum[:])[:16]
}

func (f *fakeCAS) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/add":
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"Message":"no file","Code":0}`, http.StatusInternalServerError)
			return
		}
		content, _ := io.ReadAll(file)
		cid := fakeCID(content)
		f.objects[cid] = content
		json.NewEncoder(w).Encode(map[string]string{
			"Name": "file", "Hash": cid, "Size": fmt.Sprint(len(content)),
		})
	case "/cat":
		cid := r.URL.Query().Get("arg")
		content, ok := f.objects[cid]
		if !ok {
			http.Error(w, `{"Message":"not found","Code":0}`, http.StatusInternalServerError)
			return
		}
		w.Write(content)
	case "/files/cp":
		w.Write([]byte("{}"))
	case "/files/rm":
		f.filesRm = append(f.filesRm, r.URL.Query().Get("arg"))
		w.Write([]byte("{}"))
	case "/pin/rm":
		f.pinRmCalls[r.URL.Query().Get("arg")]++
		w.Write([]byte("{}"))
	case "/version":
		json.NewEncoder(w).Encode(map[string]string{"Version": "0.29.0", "Commit": "abcdef0"})
	default:
		http.Error(w, `{"Message":"unknown endpoint","Code":0}`, http.StatusNotFound)
	}
}

func (f *fakeCAS) pinRemovals(cid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pinRmCalls[cid]
}

func (f *fakeCAS) removedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.filesRm...)
}

// testGateway bundles everything a handler test touches.
type testGateway struct {
	router http.Handler
	fake   *fakeCAS
	store  *index.SQLiteStore
}

// newTestGateway builds a full handler stack over a fake CAS node and a
// temp SQLite index. mutate adjusts the config before wiring.
func newTestGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()

	fake := newFakeCAS(t)

	cfg := config.Default()
	cfg.DatabasePath = t.TempDir() + "/test.db"
	cfg.RPCAddress = fake.srv.URL
	cfg.Mode = config.ModeProxy
	cfg.Experimental.AutoMime = false
	cfg.Experimental.TrimEmptyFolders = false
	if mutate != nil {
		mutate(cfg)
	}

	store, err := index.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := New(cfg, logger, store, cas.New(cfg.RPCAddress, "", ""), multipart.NewRegistry(cfg.ConcurrentMultipartUpload))
	if err != nil {
		t.Fatalf("handlers.New: %v", err)
	}

	router := chi.NewRouter()
	router.Use(clientip.Middleware(clientip.Source(cfg.IPExtraction)))
	router.Get("/healthz", h.Healthz)
	router.Get("/{bucket}", h.GetBucket)
	router.Post("/{bucket}", h.PostBucket)
	router.Put("/{bucket}/*", h.PutObject)
	router.Get("/{bucket}/*", h.GetObject)
	router.Head("/{bucket}/*", h.HeadObject)
	router.Delete("/{bucket}/*", h.DeleteObject)
	router.Post("/{bucket}/*", h.PostObject)

	return &testGateway{router: router, fake: fake, store: store}
}

// do runs one request through the router.
func (g *testGateway) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, r)
	return w
}

// waitFor polls cond until it holds or the deadline passes, for asserting
// on background tasks.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
