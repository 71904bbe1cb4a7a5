package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linspirer/proxy/internal/cryptor"
	"github.com/linspirer/proxy/internal/models"
	"github.com/linspirer/proxy/internal/store"
)

func testPipeline(t *testing.T, upstream *httptest.Server) (*Pipeline, *store.Store, *cryptor.Cryptor) {
	t.Helper()
	c, err := cryptor.New([]byte("0123456789abcdef"), []byte("fedcba9876543210"))
	if err != nil {
		t.Fatalf("cryptor.New: %v", err)
	}
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	target := "http://upstream.invalid"
	if upstream != nil {
		target = upstream.URL
	}
	return New(c, s, target), s, c
}

func postEncrypted(t *testing.T, p *Pipeline, c *cryptor.Cryptor, method string, params map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	paramsJSON, _ := json.Marshal(params)
	encryptedParams, err := c.Encrypt(string(paramsJSON))
	if err != nil {
		t.Fatalf("encrypt params: %v", err)
	}
	body, _ := json.Marshal(map[string]interface{}{
		"method": method,
		"params": encryptedParams,
	})

	req := httptest.NewRequest(http.MethodPost, InterceptPath, strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	return rec
}

func TestGlobalReplaceRuleShortCircuits(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("upstream should not be called when a replace rule matches")
	}))
	defer upstream.Close()

	p, s, c := testPipeline(t, upstream)
	if _, err := s.CreateRule(models.InterceptionRule{
		MethodName: "getTactics", Action: "replace", IsGlobal: true,
		CustomResponse: `{"tactics":"canned"}`,
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	rec := postEncrypted(t, p, c, "getTactics", map[string]interface{}{"email": "user@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	decrypted, err := c.Decrypt(rec.Body.String())
	if err != nil {
		t.Fatalf("decrypt response: %v", err)
	}
	if !strings.Contains(decrypted, "canned") {
		t.Errorf("response body = %q, want canned response", decrypted)
	}

	logs, total, err := s.ListLogs(store.LogFilter{Limit: 10})
	if err != nil || total != 1 {
		t.Fatalf("ListLogs: %d logs, err=%v", total, err)
	}
	if logs[0].ResponseInterceptionAction != "replace" {
		t.Errorf("logged action = %q, want replace", logs[0].ResponseInterceptionAction)
	}
}

func TestUserScopedRuleBeatsGlobal(t *testing.T) {
	var upstreamHits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits++
		w.Write([]byte("irrelevant"))
	}))
	defer upstream.Close()

	p, s, c := testPipeline(t, upstream)
	if _, err := s.CreateRule(models.InterceptionRule{
		MethodName: "getTactics", Action: "replace", IsGlobal: true, CustomResponse: `{"v":"global"}`,
	}); err != nil {
		t.Fatalf("CreateRule global: %v", err)
	}
	if _, err := s.CreateRule(models.InterceptionRule{
		MethodName: "getTactics", Action: "replace", Email: "vip@example.com", CustomResponse: `{"v":"vip"}`,
	}); err != nil {
		t.Fatalf("CreateRule user: %v", err)
	}

	rec := postEncrypted(t, p, c, "getTactics", map[string]interface{}{"email": "vip@example.com"})
	decrypted, _ := c.Decrypt(rec.Body.String())
	if !strings.Contains(decrypted, "vip") {
		t.Errorf("expected the user-scoped rule to win, got %q", decrypted)
	}
	if upstreamHits != 0 {
		t.Errorf("replace rule should never call upstream")
	}
}

func TestDisabledRuleIsIgnored(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := cryptor.New([]byte("0123456789abcdef"), []byte("fedcba9876543210"))
		encrypted, _ := c.Encrypt(`{"passthrough":true}`)
		w.Write([]byte(encrypted))
	}))
	defer upstream.Close()

	p, s, c := testPipeline(t, upstream)
	id, err := s.CreateRule(models.InterceptionRule{
		MethodName: "getTactics", Action: "replace", IsGlobal: true, CustomResponse: `{"v":"should-not-apply"}`,
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	rule, _ := s.FindRuleByID(id)
	rule.IsEnabled = false
	if err := s.UpdateRule(*rule); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}

	rec := postEncrypted(t, p, c, "getTactics", nil)
	decrypted, _ := c.Decrypt(rec.Body.String())
	if strings.Contains(decrypted, "should-not-apply") {
		t.Errorf("disabled rule should not apply, got %q", decrypted)
	}
}

func TestUpstreamFailureReturns502AndDoesNotLog(t *testing.T) {
	p, s, c := testPipeline(t, nil) // target is a deliberately unreachable host

	rec := postEncrypted(t, p, c, "getTactics", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	_, total, err := s.ListLogs(store.LogFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if total != 0 {
		t.Errorf("expected no log entries on upstream failure, got %d", total)
	}
}
