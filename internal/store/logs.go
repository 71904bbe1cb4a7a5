package store

import (
	"fmt"

	"github.com/linspirer/proxy/internal/models"
)

// AppendLog inserts one audited exchange. Errors are returned so the
// pipeline can log-and-continue per its silent-failure design.
func (s *Store) AppendLog(l models.RequestLog) error {
	_, err := s.conn.Exec(`
		INSERT INTO request_logs (
			method, email, request_body, response_body,
			intercepted_request, intercepted_response,
			request_interception_action, response_interception_action, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.Method, nullable(l.Email), l.RequestBody, l.ResponseBody,
		nullable(l.InterceptedRequest), nullable(l.InterceptedResponse),
		nullable(l.RequestInterceptionAction), nullable(l.ResponseInterceptionAction), shanghaiNow())
	if err != nil {
		return fmt.Errorf("store: append log: %w", err)
	}
	return nil
}

// LogFilter narrows ListLogs by method and/or a LIKE search across request
// and response bodies.
type LogFilter struct {
	Method string
	Search string
	Limit  int
	Offset int
}

// ListLogs returns the matching page of logs, newest first, plus the total
// count ignoring Limit/Offset.
func (s *Store) ListLogs(f LogFilter) ([]models.RequestLog, int, error) {
	where := ""
	args := []interface{}{}
	if f.Method != "" {
		where += " AND method = ?"
		args = append(args, f.Method)
	}
	if f.Search != "" {
		where += " AND (request_body LIKE ? OR response_body LIKE ?)"
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM request_logs WHERE 1=1" + where
	if err := s.conn.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count logs: %w", err)
	}

	query := `
		SELECT id, method, email, request_body, response_body,
		       intercepted_request, intercepted_response,
		       request_interception_action, response_interception_action, created_at
		FROM request_logs WHERE 1=1` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list logs: %w", err)
	}
	defer rows.Close()

	var logs []models.RequestLog
	for rows.Next() {
		var l models.RequestLog
		var email, interceptedReq, interceptedResp, reqAction, respAction nullString
		if err := rows.Scan(&l.ID, &l.Method, &email, &l.RequestBody, &l.ResponseBody,
			&interceptedReq, &interceptedResp, &reqAction, &respAction, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("store: scan log: %w", err)
		}
		l.Email = string(email)
		l.InterceptedRequest = string(interceptedReq)
		l.InterceptedResponse = string(interceptedResp)
		l.RequestInterceptionAction = string(reqAction)
		l.ResponseInterceptionAction = string(respAction)
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

// ListMethods returns every distinct, non-empty method seen in the logs.
func (s *Store) ListMethods() ([]string, error) {
	rows, err := s.conn.Query(`
		SELECT DISTINCT method FROM request_logs WHERE method IS NOT NULL AND method != '' ORDER BY method
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list methods: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ListEmails returns every distinct, non-empty email seen in the logs,
// falling back to emails named in interception rules if no log has one yet.
func (s *Store) ListEmails() ([]string, error) {
	rows, err := s.conn.Query(`
		SELECT DISTINCT email FROM request_logs WHERE email IS NOT NULL AND email != '' ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list emails: %w", err)
	}
	emails, err := scanStrings(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(emails) > 0 {
		return emails, nil
	}

	ruleRows, err := s.conn.Query(`
		SELECT DISTINCT email FROM interception_rules WHERE email IS NOT NULL AND email != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list emails from rules: %w", err)
	}
	defer ruleRows.Close()
	return scanStrings(ruleRows)
}

// LogStats reports aggregate counts for the admin dashboard.
type LogStats struct {
	TotalLogs    int `json:"total_logs"`
	MethodsCount int `json:"methods_count"`
	EmailsCount  int `json:"emails_count"`
}

// Stats computes LogStats from a row count plus ListMethods and ListEmails,
// so EmailsCount falls back to rule emails the same way ListEmails does.
func (s *Store) Stats() (LogStats, error) {
	var stats LogStats
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM request_logs").Scan(&stats.TotalLogs); err != nil {
		return stats, fmt.Errorf("store: stats: %w", err)
	}
	methods, err := s.ListMethods()
	if err != nil {
		return stats, err
	}
	stats.MethodsCount = len(methods)
	emails, err := s.ListEmails()
	if err != nil {
		return stats, err
	}
	stats.EmailsCount = len(emails)
	return stats, nil
}

type nullString string

func (n *nullString) Scan(v interface{}) error {
	if v == nil {
		*n = ""
		return nil
	}
	switch t := v.(type) {
	case string:
		*n = nullString(t)
	case []byte:
		*n = nullString(t)
	default:
		return fmt.Errorf("unsupported scan type %T", v)
	}
	return nil
}

type stringScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanStrings(rows stringScanner) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan string: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
