package envelope

import "testing"

func TestParseNewEnvelope(t *testing.T) {
	body := []byte(`{"!version":1,"client_version":"3.2","id":"1","jsonrpc":"2.0","content":{"method":"getTactics","params":{"email":"a@example.com"}}}`)
	env, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := env.Method(); got != "getTactics" {
		t.Errorf("Method() = %q, want getTactics", got)
	}
	params, ok := env.Params().(map[string]interface{})
	if !ok {
		t.Fatalf("Params() did not return a map: %#v", env.Params())
	}
	if params["email"] != "a@example.com" {
		t.Errorf("params[email] = %v", params["email"])
	}
}

func TestParseLegacyEnvelope(t *testing.T) {
	body := []byte(`{"method":"getTactics","params":{"userEmail":"b@example.com"}}`)
	env, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := env.Method(); got != "getTactics" {
		t.Errorf("Method() = %q, want getTactics", got)
	}
	if got := ExtractEmail(env.Params()); got != "b@example.com" {
		t.Errorf("ExtractEmail() = %q, want b@example.com", got)
	}
}

func TestSetParamsRoundTrip(t *testing.T) {
	body := []byte(`{"!version":1,"content":{"method":"m","params":{}}}`)
	env, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	env.SetParams("encrypted-blob")
	out, err := env.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(reserialized): %v", err)
	}
	if reparsed.Params() != "encrypted-blob" {
		t.Errorf("params after round trip = %v", reparsed.Params())
	}
}

func TestExtractEmailFromStringParams(t *testing.T) {
	encoded := `{"email":"c@example.com","task_id":"42"}`
	if got := ExtractEmail(encoded); got != "c@example.com" {
		t.Errorf("ExtractEmail(string) = %q, want c@example.com", got)
	}
}

func TestExtractEmailFieldPriority(t *testing.T) {
	params := map[string]interface{}{
		"userEmail": "first@example.com",
		"username":  "second@example.com",
	}
	if got := ExtractEmail(params); got != "first@example.com" {
		t.Errorf("ExtractEmail() = %q, want first@example.com (userEmail probed before username)", got)
	}
}

func TestExtractEmailNoMatch(t *testing.T) {
	if got := ExtractEmail(map[string]interface{}{"foo": "bar"}); got != "" {
		t.Errorf("ExtractEmail() = %q, want empty", got)
	}
}
