// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/routescope/routescope"
	"github.com/routescope/routescope/config"
	"github.com/routescope/routescope/pkg/logging"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func testRouter(t *testing.T) (*gin.Engine, *routescope.Analyzer) {
	t.Helper()

	repo := t.TempDir()
	writeTree(t, repo, map[string]string{
		"src/routes.tsx": `
import Users from './pages/Users';
import Orders from './pages/Orders';

export const routes = [
  { path: '/users', component: Users },
  { path: '/orders', component: Orders },
];
`,
		"src/pages/Users.tsx":  "export default function Users() { return null; }\n",
		"src/pages/Orders.tsx": "export default function Orders() { return null; }\n",
	})

	cfg := &config.Config{
		RepoRoot: repo,
		RepoName: "webapp",
		Store: config.StoreConfig{
			Backend:   "filesystem",
			Path:      t.TempDir(),
			Namespace: "test",
		},
		Build:  config.BuildConfig{BatchSize: 8},
		Impact: config.ImpactConfig{Policy: "prefer_precise", IterationCap: 1000},
	}

	analyzer, err := routescope.New(cfg, routescope.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { analyzer.Close() })

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	RegisterRoutes(engine.Group("/v1"), NewHandlers(analyzer, logging.Discard()))
	return engine, analyzer
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHandleInitAndDetect(t *testing.T) {
	engine, _ := testRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/routescope/init", InitRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("init status = %d, body %s", w.Code, w.Body.String())
	}
	var initResp InitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &initResp); err != nil {
		t.Fatal(err)
	}
	if initResp.TotalFiles < 3 || initResp.RouteFiles != 1 {
		t.Errorf("init response = %+v", initResp)
	}

	w = doJSON(t, engine, http.MethodPost, "/v1/routescope/detect", DetectRequest{
		Files: []string{"src/pages/Users.tsx"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("detect status = %d, body %s", w.Code, w.Body.String())
	}
	var detectResp DetectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &detectResp); err != nil {
		t.Fatal(err)
	}
	got := detectResp.Impact["src/pages/Users.tsx"]
	if len(got) != 1 || got[0] != "/users" {
		t.Errorf("impact = %v, want [/users]", got)
	}
	if len(detectResp.Routes) != 1 || detectResp.Routes[0] != "/users" {
		t.Errorf("union routes = %v", detectResp.Routes)
	}
}

func TestHandleDetect_FromDiff(t *testing.T) {
	engine, _ := testRouter(t)

	if w := doJSON(t, engine, http.MethodPost, "/v1/routescope/init", InitRequest{}); w.Code != http.StatusOK {
		t.Fatalf("init status = %d", w.Code)
	}

	diff := `--- a/src/pages/Orders.tsx
+++ b/src/pages/Orders.tsx
@@ -1,1 +1,2 @@
 export default function Orders() { return null; }
+// touched
`
	w := doJSON(t, engine, http.MethodPost, "/v1/routescope/detect", DetectRequest{Diff: diff})
	if w.Code != http.StatusOK {
		t.Fatalf("detect status = %d, body %s", w.Code, w.Body.String())
	}
	var resp DetectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if got := resp.Impact["src/pages/Orders.tsx"]; len(got) != 1 || got[0] != "/orders" {
		t.Errorf("impact = %v, want [/orders]", got)
	}
}

func TestHandleDetect_BeforeInit(t *testing.T) {
	engine, _ := testRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/routescope/detect", DetectRequest{
		Files: []string{"src/pages/Users.tsx"},
	})
	if w.Code != http.StatusConflict {
		t.Errorf("detect status = %d, want 409 before init", w.Code)
	}
}

func TestHandleDetect_EmptyChangeSet(t *testing.T) {
	engine, _ := testRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/routescope/detect", DetectRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("detect status = %d, want 400 for empty change set", w.Code)
	}
}

func TestHandleMetricsAndClear(t *testing.T) {
	engine, analyzer := testRouter(t)

	if w := doJSON(t, engine, http.MethodPost, "/v1/routescope/init", InitRequest{}); w.Code != http.StatusOK {
		t.Fatalf("init status = %d", w.Code)
	}

	w := doJSON(t, engine, http.MethodGet, "/v1/routescope/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	var m routescope.MetricsSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m.TotalFiles == 0 {
		t.Errorf("metrics = %+v, want nonzero totals after init", m)
	}

	if w := doJSON(t, engine, http.MethodPost, "/v1/routescope/clear", nil); w.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", w.Code)
	}
	if analyzer.Ready() {
		t.Error("analyzer still ready after clear")
	}
}

func TestHandleHealth(t *testing.T) {
	engine, _ := testRouter(t)

	w := doJSON(t, engine, http.MethodGet, "/v1/routescope/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Ready {
		t.Errorf("health = %+v, want ok and not ready before init", resp)
	}
}
