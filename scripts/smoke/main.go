// Command smoke drives a running ClassDesk API through the core
// assignment lifecycle: register accounts, publish an assignment,
// submit, grade and verify both dashboards. Exit code 1 on any failure.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
)

type step struct {
	Name     string
	Status   int
	Duration time.Duration
	Error    error
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type client struct {
	base  string
	http  *http.Client
	token string
}

func main() {
	var (
		base    string
		timeout time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL including prefix")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	teacherEmail := fmt.Sprintf("smoke-teacher-%s@example.com", suffix)
	studentEmail := fmt.Sprintf("smoke-student-%s@example.com", suffix)

	teacher := &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: timeout}}
	student := &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: timeout}}

	var (
		steps        []step
		assignmentID string
		submissionID string
	)

	run := func(name string, fn func() (int, error)) {
		start := time.Now()
		status, err := fn()
		steps = append(steps, step{Name: name, Status: status, Duration: time.Since(start), Error: err})
		if err != nil {
			printReport(steps)
			log.Fatalf("smoke failed at %q: %v", name, err)
		}
	}

	run("register teacher", func() (int, error) {
		return teacher.register(teacherEmail, "Smoke Teacher", "TEACHER")
	})
	run("register student", func() (int, error) {
		return student.register(studentEmail, "Smoke Student", "STUDENT")
	})
	run("login teacher", func() (int, error) {
		return teacher.login(teacherEmail)
	})
	run("login student", func() (int, error) {
		return student.login(studentEmail)
	})
	run("create assignment", func() (int, error) {
		status, data, err := teacher.postJSON("/assignments", map[string]interface{}{
			"title":       "Smoke Assignment " + suffix,
			"description": "created by the smoke tool",
			"due_date":    time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
			"max_points":  100,
		}, http.StatusCreated)
		if err != nil {
			return status, err
		}
		assignmentID, err = extractID(data)
		return status, err
	})
	run("submit work", func() (int, error) {
		status, data, err := student.submitFile("/assignments/"+assignmentID+"/submissions", "smoke.txt", []byte("smoke submission body"))
		if err != nil {
			return status, err
		}
		submissionID, err = extractID(data)
		return status, err
	})
	run("grade submission", func() (int, error) {
		status, _, err := teacher.patchJSON("/submissions/"+submissionID+"/grade", map[string]interface{}{
			"grade":    90,
			"feedback": "smoke feedback",
		}, http.StatusOK)
		return status, err
	})
	run("teacher dashboard", func() (int, error) {
		status, data, err := teacher.get("/dashboards/teacher", http.StatusOK)
		if err != nil {
			return status, err
		}
		if !bytes.Contains(data, []byte(assignmentID)) {
			return status, fmt.Errorf("assignment %s missing from teacher dashboard", assignmentID)
		}
		return status, nil
	})
	run("student dashboard", func() (int, error) {
		status, data, err := student.get("/dashboards/student", http.StatusOK)
		if err != nil {
			return status, err
		}
		if !bytes.Contains(data, []byte(`"grade":90`)) && !bytes.Contains(data, []byte(`"grade": 90`)) {
			return status, fmt.Errorf("grade missing from student dashboard")
		}
		return status, nil
	})

	printReport(steps)
	fmt.Println("smoke passed")
}

func (c *client) register(email, name, role string) (int, error) {
	status, _, err := c.postJSON("/auth/register", map[string]interface{}{
		"email":     email,
		"password":  "smoke-secret-1",
		"full_name": name,
		"role":      role,
	}, http.StatusCreated)
	return status, err
}

func (c *client) login(email string) (int, error) {
	status, data, err := c.postJSON("/auth/login", map[string]interface{}{
		"email":    email,
		"password": "smoke-secret-1",
	}, http.StatusOK)
	if err != nil {
		return status, err
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return status, fmt.Errorf("decode login payload: %w", err)
	}
	if payload.AccessToken == "" {
		return status, fmt.Errorf("login returned empty access token")
	}
	c.token = payload.AccessToken
	return status, nil
}

func (c *client) postJSON(path string, body map[string]interface{}, want int) (int, json.RawMessage, error) {
	return c.doJSON(http.MethodPost, path, body, want)
}

func (c *client) patchJSON(path string, body map[string]interface{}, want int) (int, json.RawMessage, error) {
	return c.doJSON(http.MethodPatch, path, body, want)
}

func (c *client) get(path string, want int) (int, json.RawMessage, error) {
	return c.doJSON(http.MethodGet, path, nil, want)
}

func (c *client) doJSON(method, path string, body map[string]interface{}, want int) (int, json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, want)
}

func (c *client) submitFile(path, filename string, content []byte) (int, json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return 0, nil, err
	}
	if _, err := part.Write(content); err != nil {
		return 0, nil, err
	}
	if err := w.Close(); err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.send(req, http.StatusCreated)
}

func (c *client) send(req *http.Request, want int) (int, json.RawMessage, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decode envelope: %w", err)
	}
	if resp.StatusCode != want {
		msg := "no error payload"
		if env.Error != nil {
			msg = fmt.Sprintf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return resp.StatusCode, nil, fmt.Errorf("expected status %d, got %d (%s)", want, resp.StatusCode, msg)
	}
	return resp.StatusCode, env.Data, nil
}

func extractID(data json.RawMessage) (string, error) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode id: %w", err)
	}
	if payload.ID == "" {
		return "", fmt.Errorf("response missing id")
	}
	return payload.ID, nil
}

func printReport(steps []step) {
	fmt.Println("Smoke Report")
	fmt.Println("============")
	for _, s := range steps {
		status := "OK"
		if s.Error != nil {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s\n", status, s.Name)
		fmt.Printf("  Status: %d (%s)\n", s.Status, s.Duration)
		if s.Error != nil {
			fmt.Printf("  Error: %v\n", s.Error)
		}
	}
	if len(steps) == 0 {
		fmt.Println("(no steps executed)")
	}
	_ = os.Stdout.Sync()
}
