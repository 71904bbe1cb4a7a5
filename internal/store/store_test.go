package store

import (
	"path/filepath"
	"testing"

	"github.com/linspirer/proxy/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFindRuleUserScopedBeatsGlobal(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateRule(models.InterceptionRule{
		MethodName: "getTactics", Action: "replace", IsGlobal: true, CustomResponse: "{}",
	}); err != nil {
		t.Fatalf("CreateRule global: %v", err)
	}
	if _, err := s.CreateRule(models.InterceptionRule{
		MethodName: "getTactics", Action: "modify", Email: "user@example.com", CustomResponse: "{}",
	}); err != nil {
		t.Fatalf("CreateRule user: %v", err)
	}

	rule, err := s.FindRule("getTactics", "user@example.com")
	if err != nil {
		t.Fatalf("FindRule: %v", err)
	}
	if rule == nil {
		t.Fatalf("expected a rule to match")
	}
	if rule.Action != "modify" {
		t.Errorf("action = %q, want modify (user-scoped rule should win)", rule.Action)
	}
}

func TestFindRuleFallsBackToGlobal(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateRule(models.InterceptionRule{
		MethodName: "getTactics", Action: "replace", IsGlobal: true, CustomResponse: "{}",
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	rule, err := s.FindRule("getTactics", "nobody@example.com")
	if err != nil {
		t.Fatalf("FindRule: %v", err)
	}
	if rule == nil || rule.Action != "replace" {
		t.Fatalf("expected the global rule to apply, got %#v", rule)
	}
}

func TestFindRuleIgnoresDisabledRule(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateRule(models.InterceptionRule{
		MethodName: "getTactics", Action: "replace", IsGlobal: true, CustomResponse: "{}",
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	rule, err := s.FindRuleByID(id)
	if err != nil {
		t.Fatalf("FindRuleByID: %v", err)
	}
	rule.IsEnabled = false
	if err := s.UpdateRule(*rule); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}

	found, err := s.FindRule("getTactics", "anyone@example.com")
	if err != nil {
		t.Fatalf("FindRule: %v", err)
	}
	if found != nil {
		t.Errorf("expected no rule to match once disabled, got %#v", found)
	}
}

func TestFindRuleNoMatch(t *testing.T) {
	s := openTestStore(t)
	rule, err := s.FindRule("unknownMethod", "")
	if err != nil {
		t.Fatalf("FindRule: %v", err)
	}
	if rule != nil {
		t.Errorf("expected no match, got %#v", rule)
	}
}

func TestAppendLogAndListLogs(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendLog(models.RequestLog{
		Method: "getTactics", Email: "a@example.com",
		RequestBody: `{"method":"getTactics"}`, ResponseBody: `{}`,
	}); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	logs, total, err := s.ListLogs(LogFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if total != 1 || len(logs) != 1 {
		t.Fatalf("expected 1 log, got total=%d len=%d", total, len(logs))
	}
	if logs[0].Email != "a@example.com" {
		t.Errorf("email = %q", logs[0].Email)
	}
}

func TestConfigGetSet(t *testing.T) {
	s := openTestStore(t)
	if v, err := s.GetConfig("missing"); err != nil || v != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", v, err)
	}
	if err := s.SetConfig("target_url", "https://example.com", "upstream"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	v, err := s.GetConfig("target_url")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if v != "https://example.com" {
		t.Errorf("GetConfig = %q", v)
	}
}

func TestCommandLifecycle(t *testing.T) {
	s := openTestStore(t)
	id, err := s.InsertCommand(`{"cmd":"lock"}`)
	if err != nil {
		t.Fatalf("InsertCommand: %v", err)
	}
	if err := s.UpdateCommandStatus(id, models.CommandVerified, ""); err != nil {
		t.Fatalf("UpdateCommandStatus: %v", err)
	}
	cmd, err := s.FindCommandByID(id)
	if err != nil {
		t.Fatalf("FindCommandByID: %v", err)
	}
	if cmd.Status != models.CommandVerified {
		t.Errorf("status = %q, want verified", cmd.Status)
	}
	if cmd.ProcessedAt == nil {
		t.Errorf("expected processed_at to be set")
	}
}
