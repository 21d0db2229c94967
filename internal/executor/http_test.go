package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/khaosresearch/dramax/internal/model"
)

func TestHTTPExecutor_Get_NoAuthWarns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called without auth")
	}))
	defer srv.Close()

	task := model.Task{
		Executor: model.Executor{
			Kind: model.ExecutorHTTP,
			HTTP: &model.HTTPSpec{URL: srv.URL, Method: model.HTTPGet},
		},
		Outputs: []model.Artifact{{Path: "/out.csv"}},
	}

	e := NewHTTPExecutor()
	log, err := e.Execute(t.Context(), task, t.TempDir())
	require.NoError(t, err)
	require.Contains(t, log, "warning")
}

func TestHTTPExecutor_Get_NoOutputsWarns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called without declared outputs")
	}))
	defer srv.Close()

	task := model.Task{
		Executor: model.Executor{
			Kind: model.ExecutorHTTP,
			HTTP: &model.HTTPSpec{URL: srv.URL, Method: model.HTTPGet, Auth: &model.BasicAuth{User: "u", Password: "p"}},
		},
	}

	e := NewHTTPExecutor()
	log, err := e.Execute(t.Context(), task, t.TempDir())
	require.NoError(t, err)
	require.Contains(t, log, "warning")
}

func TestHTTPExecutor_Get_WritesOutputFile(t *testing.T) {
	const body = "city,pop\nA,1\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	workdir := t.TempDir()
	task := model.Task{
		Executor: model.Executor{
			Kind: model.ExecutorHTTP,
			HTTP: &model.HTTPSpec{
				URL:    srv.URL,
				Method: model.HTTPGet,
				Auth:   &model.BasicAuth{User: "alice", Password: "secret"},
			},
		},
		Outputs: []model.Artifact{{Path: "/api/shared/data.csv"}},
	}

	e := NewHTTPExecutor()
	log, err := e.Execute(t.Context(), task, workdir)
	require.NoError(t, err)
	require.Contains(t, log, "200")

	got, err := os.ReadFile(filepath.Join(workdir, "api", "shared", "data.csv"))
	require.NoError(t, err)
	require.Equal(t, body, string(got))
}

func TestHTTPExecutor_Post_RequiresAuth(t *testing.T) {
	task := model.Task{
		Executor: model.Executor{
			Kind: model.ExecutorHTTP,
			HTTP: &model.HTTPSpec{URL: "http://example.invalid", Method: model.HTTPPost},
		},
	}
	e := NewHTTPExecutor()
	_, err := e.Execute(t.Context(), task, t.TempDir())
	require.Error(t, err)
}

func TestHTTPExecutor_Post_MultipartUploadsInputFile(t *testing.T) {
	var receivedField string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		receivedField = header.Filename
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("accepted"))
	}))
	defer srv.Close()

	workdir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workdir, "api", "shared"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "api", "shared", "data.csv"), []byte("a,b\n1,2\n"), 0644))

	task := model.Task{
		Executor: model.Executor{
			Kind: model.ExecutorHTTP,
			HTTP: &model.HTTPSpec{
				URL:     srv.URL,
				Method:  model.HTTPPost,
				Auth:    &model.BasicAuth{User: "alice", Password: "secret"},
				Headers: map[string]string{"Content-Type": "multipart/form-data"},
			},
		},
		Inputs: []model.Artifact{{Path: "/api/shared/data.csv"}},
	}

	e := NewHTTPExecutor()
	log, err := e.Execute(t.Context(), task, workdir)
	require.NoError(t, err)
	require.Contains(t, log, "200")
	require.Equal(t, "data.csv", receivedField)
}

func TestHTTPExecutor_UnsupportedMethod(t *testing.T) {
	task := model.Task{
		Executor: model.Executor{
			Kind: model.ExecutorHTTP,
			HTTP: &model.HTTPSpec{URL: "http://example.invalid", Method: "DELETE"},
		},
	}
	e := NewHTTPExecutor()
	_, err := e.Execute(t.Context(), task, t.TempDir())
	require.Error(t, err)
}

func TestRegistry_DispatchesByKind(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register(model.ExecutorHTTP, executorFunc(func(task model.Task) (string, error) {
		called = true
		return "ok", nil
	}))

	task := model.Task{Executor: model.Executor{Kind: model.ExecutorHTTP, HTTP: &model.HTTPSpec{URL: "http://x", Method: model.HTTPGet}}}
	out, err := reg.Execute(t.Context(), task, t.TempDir())
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, "ok", out)
}

func TestRegistry_UnregisteredKindFails(t *testing.T) {
	reg := NewRegistry()
	task := model.Task{Executor: model.Executor{Kind: model.ExecutorContainer, Container: &model.ContainerSpec{Image: "busybox"}}}
	_, err := reg.Execute(t.Context(), task, t.TempDir())
	require.Error(t, err)
}

// executorFunc adapts a plain function to the Executor interface for tests.
type executorFunc func(task model.Task) (string, error)

func (f executorFunc) Execute(ctx context.Context, task model.Task, workdir string) (string, error) {
	return f(task)
}
