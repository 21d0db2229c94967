package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/khaosresearch/dramax/internal/dramaxerr"
	"github.com/khaosresearch/dramax/internal/model"
)

// HTTPExecutor performs the task's call against an external endpoint,
// grounded in the teacher's plain net/http usage across its service
// clients (no HTTP framework needed on the calling side — only gin on the
// serving side, which this package has no relation to).
type HTTPExecutor struct{}

func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{}
}

func (e *HTTPExecutor) Execute(ctx context.Context, task model.Task, workdir string) (string, error) {
	spec := task.Executor.HTTP
	client := &http.Client{Timeout: time.Duration(spec.Timeout()) * time.Second}

	switch spec.Method {
	case model.HTTPGet:
		return e.executeGet(ctx, client, spec, task, workdir)
	case model.HTTPPost:
		return e.executePost(ctx, client, spec, task, workdir)
	default:
		return "", fmt.Errorf("%w: unsupported http method %q", model.ErrInvalidExecutor, spec.Method)
	}
}

func (e *HTTPExecutor) executeGet(ctx context.Context, client *http.Client, spec *model.HTTPSpec, task model.Task, workdir string) (string, error) {
	if spec.Auth == nil {
		return "warning: GET request issued without authentication; skipping", nil
	}
	if len(task.Outputs) == 0 {
		return "warning: GET request declares no outputs; nothing to persist", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return "", &dramaxerr.TransportError{Cause: err}
	}
	applyHeaders(req, spec)
	req.SetBasicAuth(spec.Auth.User, spec.Auth.Password)

	resp, err := client.Do(req)
	if err != nil {
		return "", &dramaxerr.TransportError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &dramaxerr.TransportError{Cause: err}
	}

	for _, out := range task.Outputs {
		if err := writeOutputAtomic(workdir, out, body); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("GET %s -> %d, %d bytes written to %d output(s)", spec.URL, resp.StatusCode, len(body), len(task.Outputs)), nil
}

func (e *HTTPExecutor) executePost(ctx context.Context, client *http.Client, spec *model.HTTPSpec, task model.Task, workdir string) (string, error) {
	if spec.Auth == nil {
		return "", fmt.Errorf("%w: POST request requires authentication", model.ErrInvalidExecutor)
	}

	contentType := spec.Headers["Content-Type"]
	var req *http.Request
	var err error

	if strings.Contains(contentType, "multipart/form-data") {
		req, contentType, err = e.buildMultipartRequest(ctx, spec, task, workdir)
	} else if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		req, err = e.buildFormRequest(ctx, spec)
	} else {
		req, err = e.buildJSONRequest(ctx, spec)
		contentType = "application/json"
	}
	if err != nil {
		return "", err
	}

	applyHeaders(req, spec)
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth(spec.Auth.User, spec.Auth.Password)

	resp, err := client.Do(req)
	if err != nil {
		return "", &dramaxerr.TransportError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &dramaxerr.TransportError{Cause: err}
	}

	for _, out := range task.Outputs {
		if err := writeOutputAtomic(workdir, out, body); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("POST %s -> %d, %d output(s) persisted", spec.URL, resp.StatusCode, len(task.Outputs)), nil
}

// buildMultipartRequest attaches each input artifact as form field "file",
// plus the spec's non-routing parameters as form fields, per spec.md §4.5.
func (e *HTTPExecutor) buildMultipartRequest(ctx context.Context, spec *model.HTTPSpec, task model.Task, workdir string) (*http.Request, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, in := range task.Inputs {
		localPath := filepath.Join(workdir, in.Path)
		f, err := os.Open(localPath)
		if err != nil {
			return nil, "", fmt.Errorf("open input %s for multipart: %w", localPath, err)
		}
		part, err := w.CreateFormFile("file", filepath.Base(in.Path))
		if err != nil {
			f.Close()
			return nil, "", fmt.Errorf("create multipart field: %w", err)
		}
		_, err = io.Copy(part, f)
		f.Close()
		if err != nil {
			return nil, "", fmt.Errorf("copy input %s into multipart body: %w", localPath, err)
		}
	}

	if len(spec.Body) > 0 {
		var fields map[string]string
		if err := json.Unmarshal(spec.Body, &fields); err == nil {
			for k, v := range fields {
				_ = w.WriteField(k, v)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.URL, &buf)
	if err != nil {
		return nil, "", &dramaxerr.TransportError{Cause: err}
	}
	return req, w.FormDataContentType(), nil
}

func (e *HTTPExecutor) buildFormRequest(ctx context.Context, spec *model.HTTPSpec) (*http.Request, error) {
	values := url.Values{}
	var fields map[string]string
	if err := json.Unmarshal(spec.Body, &fields); err == nil {
		for k, v := range fields {
			values.Set(k, v)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.URL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, &dramaxerr.TransportError{Cause: err}
	}
	return req, nil
}

func (e *HTTPExecutor) buildJSONRequest(ctx context.Context, spec *model.HTTPSpec) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.URL, bytes.NewReader(spec.Body))
	if err != nil {
		return nil, &dramaxerr.TransportError{Cause: err}
	}
	return req, nil
}

func applyHeaders(req *http.Request, spec *model.HTTPSpec) {
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}
}

func writeOutputAtomic(workdir string, out model.Artifact, body []byte) error {
	path := filepath.Join(workdir, out.Path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir for output %s: %w", path, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return fmt.Errorf("write output %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize output %s: %w", path, err)
	}
	return nil
}
