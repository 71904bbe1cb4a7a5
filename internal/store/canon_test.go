package store

import (
	"testing"

	"github.com/linspirer/proxy/internal/models"
)

func TestCanonicalizeJSONReordersKeys(t *testing.T) {
	out, err := canonicalizeJSON(`{"b":2,"a":1}`)
	if err != nil {
		t.Fatalf("canonicalizeJSON: %v", err)
	}
	if out != `{"a":1,"b":2}` {
		t.Errorf("canonicalizeJSON = %q, want sorted keys", out)
	}
}

func TestCanonicalizeJSONEmptyPassesThrough(t *testing.T) {
	out, err := canonicalizeJSON("")
	if err != nil {
		t.Fatalf("canonicalizeJSON: %v", err)
	}
	if out != "" {
		t.Errorf("canonicalizeJSON(\"\") = %q, want empty", out)
	}
}

func TestCanonicalizeJSONRejectsInvalidInput(t *testing.T) {
	if _, err := canonicalizeJSON("not json"); err == nil {
		t.Errorf("expected an error for invalid JSON")
	}
}

func TestCreateRuleCanonicalizesCustomResponse(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateRule(models.InterceptionRule{
		MethodName: "getTactics", Action: "replace", IsGlobal: true,
		CustomResponse: `{"z":1,"a":2}`,
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	rule, err := s.FindRuleByID(id)
	if err != nil {
		t.Fatalf("FindRuleByID: %v", err)
	}
	if rule.CustomResponse != `{"a":2,"z":1}` {
		t.Errorf("CustomResponse = %q, want canonicalized form", rule.CustomResponse)
	}
}
