package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"groupchat/internal/auth"
	"groupchat/internal/config"
	"groupchat/internal/db"
	"groupchat/internal/filestore"
	"groupchat/internal/service"
	"groupchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestEngine(t *testing.T) (*gin.Engine, *gorm.DB, *filestore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}

	cfg := config.Config{
		Port:            "0",
		DatabaseDSN:     "test",
		Env:             "dev",
		SessionTTLHours: 24,
		MaxUploadMB:     32,
		Credentials: []config.Credential{
			{Username: "alice", Password: "secret1", Nickname: "Alice"},
			{Username: "bob", Password: "secret2", Nickname: "Bob"},
		},
	}

	hub := ws.NewHub(
		service.NewMessageService(gdb),
		service.NewFileService(gdb, store),
		service.NewHistoryService(gdb, store),
	)
	go hub.Run()

	return SetupRouter(cfg, gdb, store, hub), gdb, store
}

// loginCookie performs a login through the API and returns the session cookie.
func loginCookie(t *testing.T, engine *gin.Engine, username, password string) *http.Cookie {
	t.Helper()
	body := `{"username":"` + username + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", w.Code)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func TestHealthz(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	for _, body := range []string{
		`{"username":"alice","password":"wrong"}`,
		`{"username":"nobody","password":"secret1"}`,
		`{"username":"","password":""}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("login %s status = %d, want 401", body, w.Code)
		}
		// The generic rejection leaks nothing about which field was wrong.
		var resp map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp["success"] != false {
			t.Errorf("login response = %v, want success=false", resp)
		}
	}
}

func TestLogin_Success(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	cookie := loginCookie(t, engine, "alice", "secret1")
	if cookie.Value == "" {
		t.Error("session cookie is empty")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
}

func TestAuthRequired(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	for _, path := range []string{"/api/v1/messages", "/api/v1/files", "/api/v1/files/1/download"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without session = %d, want 401", path, w.Code)
		}
	}
}

func TestLogout_RevokesSession(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	cookie := loginCookie(t, engine, "alice", "secret1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", w.Code)
	}

	// The old token is now rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /messages after logout = %d, want 401", w.Code)
	}
}

func TestListMessages(t *testing.T) {
	engine, gdb, _ := newTestEngine(t)

	msgSvc := service.NewMessageService(gdb)
	if _, err := msgSvc.Create("Alice", "hello"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := msgSvc.Create("Bob", "world"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cookie := loginCookie(t, engine, "alice", "secret1")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /messages = %d, want 200", w.Code)
	}
	var resp struct {
		Messages []service.MessageDTO `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(resp.Messages))
	}
	if resp.Messages[0].Content != "hello" || resp.Messages[1].Content != "world" {
		t.Errorf("messages out of order: %+v", resp.Messages)
	}
}

func TestFileDownload(t *testing.T) {
	engine, gdb, store := newTestEngine(t)

	fileSvc := service.NewFileService(gdb, store)
	dto, err := fileSvc.Create("Alice", "note.pdf", base64.StdEncoding.EncodeToString([]byte("pdf bytes")))
	if err != nil {
		t.Fatalf("seed file: %v", err)
	}

	cookie := loginCookie(t, engine, "alice", "secret1")
	req := httptest.NewRequest(http.MethodGet, dto.URL, nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("download = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}
	if w.Body.String() != "pdf bytes" {
		t.Errorf("download body = %q", w.Body.String())
	}
}

func TestFileDownload_NotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	cookie := loginCookie(t, engine, "alice", "secret1")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/999/download", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("download missing file = %d, want 404", w.Code)
	}
}

func TestWs_RejectsUnauthenticated(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	// A plain request without a session must be rejected before any
	// upgrade happens; the connection never reaches the hub.
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /ws without session = %d, want 401", w.Code)
	}
}

func TestWs_EndToEnd(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	srv := httptest.NewServer(engine)
	defer srv.Close()

	cookieA := loginCookie(t, engine, "alice", "secret1")
	cookieB := loginCookie(t, engine, "bob", "secret2")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	dial := func(cookie *http.Cookie) *websocket.Conn {
		header := http.Header{}
		header.Set("Cookie", cookie.Name+"="+cookie.Value)
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err != nil {
			t.Fatalf("dial: %v (resp %v)", err, resp)
		}
		return conn
	}

	connA := dial(cookieA)
	defer connA.Close()
	connB := dial(cookieB)
	defer connB.Close()
	// Let both registrations reach the hub before the first event.
	time.Sleep(20 * time.Millisecond)

	if err := connA.WriteJSON(map[string]any{"type": "message", "content": "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var evt map[string]any
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("client %s read: %v", name, err)
		}
		if evt["type"] != "message" || evt["nickname"] != "Alice" || evt["content"] != "hello" {
			t.Errorf("client %s event = %v", name, evt)
		}
	}

	// Typing indicators are not echoed to their sender.
	if err := connB.WriteJSON(map[string]any{"type": "typing", "active": true}); err != nil {
		t.Fatalf("write typing: %v", err)
	}
	connA.SetReadDeadline(time.Now().Add(time.Second))
	var evt map[string]any
	if err := connA.ReadJSON(&evt); err != nil {
		t.Fatalf("client A read typing: %v", err)
	}
	if evt["type"] != "typing" || evt["nickname"] != "Bob" {
		t.Errorf("typing event = %v", evt)
	}

	connB.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := connB.ReadJSON(&evt); err == nil {
		t.Errorf("sender received its own typing indicator: %v", evt)
	}

	uploadPayload := base64.StdEncoding.EncodeToString([]byte("file content"))
	if err := connA.WriteJSON(map[string]any{"type": "file", "file_name": "doc.exe", "file_data": uploadPayload}); err != nil {
		t.Fatalf("write file: %v", err)
	}
	connA.SetReadDeadline(time.Now().Add(time.Second))
	if err := connA.ReadJSON(&evt); err != nil {
		t.Fatalf("client A read rejection: %v", err)
	}
	if evt["type"] != "error" {
		t.Errorf("doc.exe upload should produce an error event for the sender, got %v", evt)
	}
	connB.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := connB.ReadJSON(&evt); err == nil {
		t.Errorf("rejected upload was broadcast: %v", evt)
	}
}
