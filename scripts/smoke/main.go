// Command smoke logs into a running registrar API and checks that each configured
// route answers with the expected status and response envelope.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/registrar-api/internal/models"
)

type check struct {
	Name   string          `json:"name"`
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Role   string          `json:"role"`
	Body   json.RawMessage `json:"body,omitempty"`
	Expect int             `json:"expect"`
	Raw    bool            `json:"raw"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type plan struct {
	Accounts map[string]credentials `json:"accounts"`
	Checks   []check                `json:"checks"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type result struct {
	check    check
	status   int
	duration time.Duration
	err      error
}

func (r result) ok() bool {
	return r.err == nil && r.status == r.check.Expect
}

func main() {
	var (
		base     string
		planPath string
		timeout  time.Duration
	)
	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "registrar API base URL")
	flag.StringVar(&planPath, "plan", filepath.Join("scripts", "smoke", "checks.json"), "path to JSON check plan")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync() //nolint:errcheck

	p, err := loadPlan(planPath)
	if err != nil {
		logger.Fatal("load plan", zap.Error(err))
	}

	runner := &runner{client: &http.Client{Timeout: timeout}, base: strings.TrimRight(base, "/"), tokens: map[string]string{}}
	for role, creds := range p.Accounts {
		token, err := runner.login(expandEnv(creds))
		if err != nil {
			logger.Fatal("login", zap.String("role", role), zap.Error(err))
		}
		runner.tokens[role] = token
	}

	failed := 0
	for _, c := range p.Checks {
		res := runner.run(c)
		fields := []zap.Field{
			zap.String("check", c.Name),
			zap.String("method", c.Method),
			zap.String("path", c.Path),
			zap.Int("status", res.status),
			zap.Int("expect", c.Expect),
			zap.Duration("duration", res.duration),
		}
		if !res.ok() {
			failed++
			logger.Error("check failed", append(fields, zap.Error(res.err))...)
			continue
		}
		logger.Info("check passed", fields...)
	}

	logger.Info("smoke run finished", zap.Int("checks", len(p.Checks)), zap.Int("failed", failed))
	if failed > 0 {
		os.Exit(1)
	}
}

func loadPlan(path string) (*plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(p.Checks) == 0 {
		return nil, fmt.Errorf("no checks defined in %s", path)
	}
	return &p, nil
}

// expandEnv lets the plan reference secrets such as ${SMOKE_ADMIN_PASSWORD}.
func expandEnv(c credentials) credentials {
	return credentials{Email: os.ExpandEnv(c.Email), Password: os.ExpandEnv(c.Password)}
}

type runner struct {
	client *http.Client
	base   string
	tokens map[string]string
}

func (r *runner) login(creds credentials) (string, error) {
	body, _ := json.Marshal(models.LoginRequest{Email: creds.Email, Password: creds.Password})
	resp, err := r.client.Post(r.base+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode login: %w", err)
	}
	var login models.LoginResponse
	if err := json.Unmarshal(env.Data, &login); err != nil {
		return "", fmt.Errorf("decode login data: %w", err)
	}
	if login.AccessToken == "" {
		return "", fmt.Errorf("login returned no token")
	}
	return login.AccessToken, nil
}

func (r *runner) run(c check) result {
	res := result{check: c}
	method := strings.ToUpper(strings.TrimSpace(c.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := c.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if len(c.Body) > 0 {
		body = bytes.NewReader(c.Body)
	}
	req, err := http.NewRequest(method, r.base+path, body)
	if err != nil {
		res.err = err
		return res
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Role != "" {
		token, ok := r.tokens[c.Role]
		if !ok {
			res.err = fmt.Errorf("no account configured for role %q", c.Role)
			return res
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	res.duration = time.Since(start)
	if err != nil {
		res.err = err
		return res
	}
	defer resp.Body.Close()
	res.status = resp.StatusCode

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		res.err = fmt.Errorf("read body: %w", err)
		return res
	}
	if c.Raw || resp.StatusCode == http.StatusNoContent {
		return res
	}
	res.err = validateEnvelope(resp.StatusCode, payload)
	return res
}

// validateEnvelope checks that successes carry data and failures carry a coded error.
func validateEnvelope(status int, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("body is not a JSON envelope: %w", err)
	}
	if status >= http.StatusBadRequest {
		if env.Error == nil || env.Error.Code == "" {
			return fmt.Errorf("error response without code")
		}
		return nil
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("success response without data")
	}
	return nil
}
