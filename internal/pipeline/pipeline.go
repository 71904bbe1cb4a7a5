// Package pipeline implements the intercepting proxy's core exchange: read
// the client's JSON-RPC request, resolve an interception rule, apply it,
// forward to the upstream control server, and audit-log the exchange.
// Every step short of a failed upstream connection degrades silently — a
// decrypt, encrypt, or log failure never breaks connectivity for the
// client.
package pipeline

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/linspirer/proxy/internal/action"
	"github.com/linspirer/proxy/internal/cryptor"
	"github.com/linspirer/proxy/internal/envelope"
	"github.com/linspirer/proxy/internal/logging"
	"github.com/linspirer/proxy/internal/models"
	"github.com/linspirer/proxy/internal/pool"
	"github.com/linspirer/proxy/internal/store"
)

// InterceptPath is the only path the pipeline intercepts; everything else
// reaching the process is a routing mistake upstream of this handler.
const InterceptPath = "/public-interface.php"

const maxBodyBytes = 4 * 1024 * 1024

// Pipeline is the proxy orchestrator, holding the long-lived collaborators
// each request needs.
type Pipeline struct {
	Cryptor   *cryptor.Cryptor
	Store     *store.Store
	TargetURL string
	client    *http.Client
}

// New builds a Pipeline with a shared upstream HTTP client. TLS verification
// is disabled to match the reference deployment's self-signed upstream
// certificate — the wire format is encrypted independently at the
// application layer.
func New(c *cryptor.Cryptor, s *store.Store, targetURL string) *Pipeline {
	return &Pipeline{
		Cryptor:   c,
		Store:     s,
		TargetURL: targetURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// ServeHTTP handles every request to InterceptPath.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()[:8]

	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	if _, err := io.Copy(buf, io.LimitReader(r.Body, maxBodyBytes)); err != nil {
		logging.Warn("failed to read request body", logging.Fields{RequestID: requestID, Error: err.Error(), Component: "pipeline"})
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	bodyBytes := buf.Bytes()
	if len(bodyBytes) == 0 {
		// An empty body is forwarded untouched rather than failed — there is
		// nothing to decrypt, resolve, or log.
		p.forwardRaw(w, r, requestID, bodyBytes)
		return
	}

	env, err := envelope.Parse(bodyBytes)
	if err != nil {
		// Not JSON at all — forward untouched rather than fail the client.
		p.forwardRaw(w, r, requestID, bodyBytes)
		return
	}

	p.decryptParams(env, requestID)
	originalRequestJSON, err := env.MarshalJSON()
	if err != nil {
		logging.Warn("failed to marshal decrypted request for logging", logging.Fields{RequestID: requestID, Error: err.Error(), Component: "pipeline"})
		originalRequestJSON = bodyBytes
	}

	method := env.Method()
	email := envelope.ExtractEmail(env.Params())

	rule, err := p.Store.FindRule(method, email)
	if err != nil {
		logging.Warn("rule lookup failed", logging.Fields{RequestID: requestID, Method: method, Error: err.Error(), Component: "pipeline"})
	}

	if rule != nil {
		logging.Info("interception rule matched", logging.Fields{RequestID: requestID, Method: method, Action: rule.Action, Email: email, Component: "pipeline"})
	}

	if rule != nil && rule.Action == action.Replace {
		p.handleReplace(w, requestID, method, email, string(originalRequestJSON), *rule)
		return
	}

	interceptedRequestJSON, reqAction := p.applyRequestAction(env, rule, requestID)

	encryptedBody, err := p.encryptEnvelope(env)
	if err != nil {
		logging.Warn("failed to encrypt outgoing request", logging.Fields{RequestID: requestID, Method: method, Error: err.Error(), Component: "pipeline"})
		encryptedBody = bodyBytes
	}

	upstreamResp, err := p.forward(r, encryptedBody)
	if err != nil {
		logging.Error("upstream request failed", logging.Fields{RequestID: requestID, Method: method, Error: err.Error(), Component: "pipeline"})
		http.Error(w, fmt.Sprintf(`{"error":"Failed to connect to target: %s"}`, err.Error()), http.StatusBadGateway)
		return
	}
	defer upstreamResp.Body.Close()

	respBuf := pool.GetBuffer()
	defer pool.PutBuffer(respBuf)
	if _, err := respBuf.ReadFrom(upstreamResp.Body); err != nil {
		logging.Warn("failed to read upstream response", logging.Fields{RequestID: requestID, Method: method, Error: err.Error(), Component: "pipeline"})
	}
	rawResponseBody := respBuf.String()

	decryptedResponse, err := p.Cryptor.Decrypt(rawResponseBody)
	if err != nil {
		logging.Warn("failed to decrypt response, using original", logging.Fields{RequestID: requestID, Method: method, Error: err.Error(), Component: "pipeline"})
		decryptedResponse = rawResponseBody
	}

	// The replace action already short-circuited above, so nothing on the
	// response path rewrites finalResponse here — only the request side has
	// an action to apply.
	var interceptedResponse, respAction string
	finalResponse := decryptedResponse

	encryptedResponse, err := p.Cryptor.Encrypt(finalResponse)
	if err != nil {
		logging.Warn("failed to encrypt response", logging.Fields{RequestID: requestID, Method: method, Error: err.Error(), Component: "pipeline"})
		encryptedResponse = rawResponseBody
	}

	p.appendLog(requestID, models.RequestLog{
		Method:                     method,
		Email:                      email,
		RequestBody:                string(originalRequestJSON),
		ResponseBody:               decryptedResponse,
		InterceptedRequest:         interceptedRequestJSON,
		InterceptedResponse:        interceptedResponse,
		RequestInterceptionAction:  reqAction,
		ResponseInterceptionAction: respAction,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(upstreamResp.StatusCode)
	io.WriteString(w, encryptedResponse)
}

func (p *Pipeline) decryptParams(env *envelope.Envelope, requestID string) {
	paramsStr, ok := env.Params().(string)
	if !ok {
		return
	}
	decrypted, err := p.Cryptor.Decrypt(paramsStr)
	if err != nil {
		logging.Warn("failed to decrypt request params", logging.Fields{RequestID: requestID, Method: env.Method(), Error: err.Error(), Component: "pipeline"})
		env.SetParams(map[string]interface{}{"error": "Failed to decrypt params"})
		return
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(decrypted), &parsed); err != nil {
		logging.Warn("decrypted request params are not valid JSON", logging.Fields{RequestID: requestID, Method: env.Method(), Error: err.Error(), Component: "pipeline"})
		env.SetParams(map[string]interface{}{"error": "Failed to decrypt params"})
		return
	}
	env.SetParams(parsed)
}

// applyRequestAction mutates env in place per rule (modify /
// randomize_app_duration / passthrough) and returns the logged
// representation of the intercepted request plus the action name recorded
// in the log, both empty when no rule applied.
func (p *Pipeline) applyRequestAction(env *envelope.Envelope, rule *models.InterceptionRule, requestID string) (string, string) {
	if rule == nil {
		return "", ""
	}

	switch rule.Action {
	case action.Modify:
		replacement, err := action.ApplyModify(rule.CustomResponse)
		if err != nil {
			logging.Warn("failed to apply modify rule", logging.Fields{RequestID: requestID, Method: env.Method(), Error: err.Error(), Component: "pipeline"})
			return "", ""
		}
		env.SetParams(replacement)
		logged, _ := env.MarshalJSON()
		return string(logged), action.Modify

	case action.RandomizeAppDuration:
		params, ok := env.Params().(map[string]interface{})
		if !ok {
			return "", ""
		}
		logsVal, _ := params["logs"].([]interface{})
		if logsVal == nil {
			return "", ""
		}
		newLogs, details, err := action.ApplyRandomizeAppDuration(logsVal, rule.CustomResponse)
		if err != nil {
			logging.Warn("failed to apply randomize_app_duration rule", logging.Fields{RequestID: requestID, Method: env.Method(), Error: err.Error(), Component: "pipeline"})
			return "", ""
		}
		params["logs"] = newLogs
		env.SetParams(params)
		env.Raw()["_rule_info"] = map[string]interface{}{
			"method":         env.Method(),
			"status":         "enabled",
			"action":         action.RandomizeAppDuration,
			"action_details": details,
		}
		logged, _ := env.MarshalJSON()
		return string(logged), action.RandomizeAppDuration

	case action.Passthrough:
		return "", action.Passthrough

	default:
		return "", ""
	}
}

// encryptEnvelope encrypts params in place (popping _rule_info first so it
// never ends up inside the encrypted ciphertext, then re-adding it so it
// still rides along as a plain side-channel field the way the reference
// deployment's wire format does) and marshals the whole envelope.
func (p *Pipeline) encryptEnvelope(env *envelope.Envelope) ([]byte, error) {
	ruleInfo, hadRuleInfo := env.Raw()["_rule_info"]
	delete(env.Raw(), "_rule_info")

	paramsJSON, err := json.Marshal(env.Params())
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	encrypted, err := p.Cryptor.Encrypt(string(paramsJSON))
	if err != nil {
		return nil, err
	}
	env.SetParams(encrypted)

	if hadRuleInfo {
		env.Raw()["_rule_info"] = ruleInfo
	}

	return env.MarshalJSON()
}

func (p *Pipeline) handleReplace(w http.ResponseWriter, requestID, method, email, originalRequestJSON string, rule models.InterceptionRule) {
	responseJSON, err := action.BuildReplaceResponse(rule.CustomResponse)
	if err != nil {
		logging.Error("failed to apply replace rule", logging.Fields{RequestID: requestID, Method: method, Error: err.Error(), Component: "pipeline"})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	encrypted, err := p.Cryptor.Encrypt(responseJSON)
	if err != nil {
		logging.Warn("failed to encrypt replace response", logging.Fields{RequestID: requestID, Method: method, Error: err.Error(), Component: "pipeline"})
		encrypted = responseJSON
	}

	p.appendLog(requestID, models.RequestLog{
		Method:                     method,
		Email:                      email,
		RequestBody:                originalRequestJSON,
		ResponseBody:               responseJSON,
		InterceptedRequest:         originalRequestJSON,
		InterceptedResponse:        responseJSON,
		ResponseInterceptionAction: action.Replace,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, encrypted)
}

func (p *Pipeline) forward(r *http.Request, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.TargetURL+InterceptPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.client.Do(req)
}

func (p *Pipeline) forwardRaw(w http.ResponseWriter, r *http.Request, requestID string, body []byte) {
	resp, err := p.forward(r, body)
	if err != nil {
		logging.Error("upstream request failed", logging.Fields{RequestID: requestID, Error: err.Error(), Component: "pipeline"})
		http.Error(w, fmt.Sprintf(`{"error":"Failed to connect to target: %s"}`, err.Error()), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (p *Pipeline) appendLog(requestID string, l models.RequestLog) {
	if err := p.Store.AppendLog(l); err != nil {
		logging.Warn("failed to save request log", logging.Fields{RequestID: requestID, Method: l.Method, Error: err.Error(), Component: "pipeline"})
	}
}
