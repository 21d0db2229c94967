package model

import (
	"encoding/json"
	"fmt"
)

// ExecutorKind discriminates the tagged union of executor variants a task
// may carry. Exactly one of ContainerSpec or HTTPSpec is populated for a
// given kind.
type ExecutorKind string

const (
	ExecutorContainer ExecutorKind = "container"
	ExecutorHTTP      ExecutorKind = "http"
)

// Param is a single {name, value} pair assembled into a container command
// line, in declaration order.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ContainerSpec describes the Container executor variant.
type ContainerSpec struct {
	Image   string            `json:"image"`
	Tag     string            `json:"tag,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Params  []Param           `json:"params,omitempty"`
	Binding string            `json:"binding,omitempty"`
}

// Ref returns the fully qualified image reference.
func (c ContainerSpec) Ref() string {
	if c.Tag == "" {
		return c.Image
	}
	return fmt.Sprintf("%s:%s", c.Image, c.Tag)
}

// HTTPMethod restricts the HTTP executor to the two methods spec.md allows.
type HTTPMethod string

const (
	HTTPGet  HTTPMethod = "GET"
	HTTPPost HTTPMethod = "POST"
)

// BasicAuth is an optional username/password pair for the HTTP executor.
type BasicAuth struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// HTTPSpec describes the HTTP executor variant.
type HTTPSpec struct {
	URL            string            `json:"url"`
	Method         HTTPMethod        `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
	Auth           *BasicAuth        `json:"auth,omitempty"`
	Body           json.RawMessage   `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeout,omitempty"`
}

// DefaultHTTPTimeoutSeconds is applied when HTTPSpec.TimeoutSeconds is zero.
const DefaultHTTPTimeoutSeconds = 10

// Timeout returns the configured timeout, defaulting per spec.md §3.
func (h HTTPSpec) Timeout() int {
	if h.TimeoutSeconds <= 0 {
		return DefaultHTTPTimeoutSeconds
	}
	return h.TimeoutSeconds
}

// Executor is the tagged-union envelope around exactly one executor variant.
type Executor struct {
	Kind      ExecutorKind   `json:"kind"`
	Container *ContainerSpec `json:"container,omitempty"`
	HTTP      *HTTPSpec      `json:"http,omitempty"`
}

// Validate enforces "exactly one of the two known variants" (spec.md §3).
func (e Executor) Validate() error {
	switch e.Kind {
	case ExecutorContainer:
		if e.Container == nil || e.HTTP != nil {
			return fmt.Errorf("%w: container executor requires exactly a container spec", ErrInvalidExecutor)
		}
	case ExecutorHTTP:
		if e.HTTP == nil || e.Container != nil {
			return fmt.Errorf("%w: http executor requires exactly an http spec", ErrInvalidExecutor)
		}
		if e.HTTP.Method != HTTPGet && e.HTTP.Method != HTTPPost {
			return fmt.Errorf("%w: http method must be GET or POST", ErrInvalidExecutor)
		}
	default:
		return fmt.Errorf("%w: unknown executor kind %q", ErrInvalidExecutor, e.Kind)
	}
	return nil
}
