package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// captureLogs デフォルトロガーをJSONバッファに差し替え、記録されたエントリを返す関数を返す
func captureLogs(t *testing.T) func() []map[string]any {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	return func() []map[string]any {
		var entries []map[string]any
		scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			var entry map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				t.Fatalf("Failed to decode log line %q: %v", scanner.Text(), err)
			}
			entries = append(entries, entry)
		}
		return entries
	}
}

// withRequestID RequestIDミドルウェアを通したリクエストを返す
func withRequestID(r *http.Request, id string) *http.Request {
	r.Header.Set(RequestIDHeader, id)
	var out *http.Request
	RequestID(http.HandlerFunc(func(_ http.ResponseWriter, req *http.Request) {
		out = req
	})).ServeHTTP(httptest.NewRecorder(), r)
	return out
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		wantStatus  int
		wantForward bool
	}{
		{name: "正常系: プリフライトは204で止める", method: http.MethodOptions, wantStatus: http.StatusNoContent, wantForward: false},
		{name: "正常系: GETは通過", method: http.MethodGet, wantStatus: http.StatusOK, wantForward: true},
		{name: "正常系: POSTは通過", method: http.MethodPost, wantStatus: http.StatusOK, wantForward: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forwarded := false
			handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				forwarded = true
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/v1/classify", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantStatus)
			}
			if forwarded != tt.wantForward {
				t.Errorf("forwarded = %v, want %v", forwarded, tt.wantForward)
			}
			if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Error("Access-Control-Allow-Origin header not set correctly")
			}
			if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), RequestIDHeader) {
				t.Errorf("Access-Control-Allow-Headers = %s, want %s allowed", rec.Header().Get("Access-Control-Allow-Headers"), RequestIDHeader)
			}
			expose := rec.Header().Get("Access-Control-Expose-Headers")
			if !strings.Contains(expose, "X-Cache") || !strings.Contains(expose, RequestIDHeader) {
				t.Errorf("Access-Control-Expose-Headers = %s", expose)
			}
		})
	}
}

func TestLoggerWithHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		statusCode int
		cache      string
		wantMsg    string
		wantLevel  string
	}{
		{name: "正常系: 分類APIはINFOで記録", path: "/api/v1/classify", statusCode: http.StatusOK, cache: "HIT", wantMsg: "HTTP request", wantLevel: "INFO"},
		{name: "異常系: 4xxはINFOのまま", path: "/api/v1/waste-info/unknown", statusCode: http.StatusNotFound, wantMsg: "HTTP request", wantLevel: "INFO"},
		{name: "異常系: 5xxはERROR", path: "/api/v1/classify", statusCode: http.StatusBadGateway, wantMsg: "HTTP request", wantLevel: "ERROR"},
		{name: "正常系: 正常なヘルスチェックは記録しない", path: "/health", statusCode: http.StatusOK},
		{name: "異常系: 失敗したヘルスチェックは記録", path: "/health", statusCode: http.StatusServiceUnavailable, wantMsg: "Health check failed", wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)
			handler := LoggerWithHealthCheck(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.cache != "" {
					w.Header().Set("X-Cache", tt.cache)
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(`{"success":true}`))
			}))

			req := withRequestID(httptest.NewRequest(http.MethodGet, tt.path, nil), "req-log-1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.statusCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.statusCode)
			}

			entries := logs()
			if tt.wantMsg == "" {
				if len(entries) != 0 {
					t.Errorf("log entries = %v, want none", entries)
				}
				return
			}
			if len(entries) != 1 {
				t.Fatalf("log entries = %d, want 1", len(entries))
			}
			entry := entries[0]
			if entry["msg"] != tt.wantMsg || entry["level"] != tt.wantLevel {
				t.Errorf("msg = %v level = %v, want %s %s", entry["msg"], entry["level"], tt.wantMsg, tt.wantLevel)
			}
			if entry["request_id"] != "req-log-1" {
				t.Errorf("request_id = %v, want req-log-1", entry["request_id"])
			}
			if entry["status"] != float64(tt.statusCode) {
				t.Errorf("status = %v, want %d", entry["status"], tt.statusCode)
			}
			if tt.wantMsg == "HTTP request" {
				if entry["cache"] != tt.cache {
					t.Errorf("cache = %v, want %q", entry["cache"], tt.cache)
				}
				if entry["bytes"] != float64(len(`{"success":true}`)) {
					t.Errorf("bytes = %v", entry["bytes"])
				}
			}
		})
	}
}

func TestResponseWriter_TracksWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	if rw.wroteHeader {
		t.Fatal("wroteHeader = true before any write")
	}

	for _, chunk := range []string{"Hello", " ", "World"} {
		if _, err := rw.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	if !rw.wroteHeader {
		t.Error("wroteHeader = false after Write()")
	}
	if rw.written != int64(len("Hello World")) {
		t.Errorf("written = %d, want %d", rw.written, len("Hello World"))
	}
	if rw.statusCode != http.StatusOK || rec.Body.String() != "Hello World" {
		t.Errorf("statusCode = %d body = %q", rw.statusCode, rec.Body.String())
	}
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name       string
		panicValue any
	}{
		{name: "異常系: 文字列", panicValue: "nil map write"},
		{name: "異常系: nil", panicValue: nil},
		{name: "異常系: 整数", panicValue: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)
			handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Cache", "MISS")
				panic(tt.panicValue)
			}))

			req := withRequestID(httptest.NewRequest(http.MethodPost, "/api/v1/classify", nil), "req-panic-1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status code = %d, want %d", rec.Code, http.StatusInternalServerError)
			}
			if rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", rec.Header().Get("Content-Type"))
			}
			if rec.Header().Get("X-Cache") != "" {
				t.Errorf("X-Cache = %s, want cleared", rec.Header().Get("X-Cache"))
			}

			var response ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Success || response.Error != "Internal server error" {
				t.Errorf("response = %+v", response)
			}

			entries := logs()
			if len(entries) != 1 || entries[0]["msg"] != "Panic recovered" {
				t.Fatalf("log entries = %v", entries)
			}
			if entries[0]["request_id"] != "req-panic-1" || entries[0]["path"] != "/api/v1/classify" {
				t.Errorf("request_id = %v path = %v", entries[0]["request_id"], entries[0]["path"])
			}
		})
	}
}

func TestRecovery_AfterResponseStarted(t *testing.T) {
	captureLogs(t)
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true`))
		panic("encoder failed")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/providers", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != `{"success":true` {
		t.Errorf("body = %q, want the partial response untouched", rec.Body.String())
	}
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered = %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/classify", nil))
	t.Error("Expected panic to propagate")
}

func TestMiddlewareChain_PanicCarriesRequestID(t *testing.T) {
	captureLogs(t)
	var chain http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("classifier exploded")
	})
	chain = Recovery(chain)
	chain = LoggerWithHealthCheck(chain)
	chain = CORS(chain)
	chain = RequestID(chain)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", nil)
	req.Header.Set(RequestIDHeader, "req-chain-1")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if rec.Header().Get(RequestIDHeader) != "req-chain-1" {
		t.Errorf("%s = %s, want req-chain-1", RequestIDHeader, rec.Header().Get(RequestIDHeader))
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing on recovered response")
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{name: "正常系: 指定なしは生成", incoming: "", wantSame: false},
		{name: "正常系: 指定ありは引き継ぐ", incoming: "req-123", wantSame: true},
		{name: "境界値: 長すぎる指定は置き換え", incoming: strings.Repeat("x", 200), wantSame: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFrom(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got == "" || got != seen {
				t.Errorf("header = %q, context = %q", got, seen)
			}
			if (got == tt.incoming) != tt.wantSame {
				t.Errorf("request id = %q, incoming %q, wantSame %v", got, tt.incoming, tt.wantSame)
			}
		})
	}
}

func TestRequestIDFrom_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if id := RequestIDFrom(req.Context()); id != "" {
		t.Errorf("RequestIDFrom() = %q, want empty", id)
	}
}
