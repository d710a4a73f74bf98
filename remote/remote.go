// Package remote pushes saved flows to the team flow service. The service
// speaks an uppercase step type enum on the wire; this package owns the
// lossless mapping between that and the lowercase internal enum.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/flowscribe/flowscribe"
)

// ErrRemoteRejected wraps any non-2xx response from the flow service.
var ErrRemoteRejected = errors.New("flow service rejected the request", j.C("ERR_6d2f48a1c79e50b3"))

var wireStepTypes = map[flowscribe.StepType]string{
	flowscribe.StepTypeClick:      "CLICK",
	flowscribe.StepTypeNavigation: "NAVIGATION",
	flowscribe.StepTypeInput:      "INPUT",
	flowscribe.StepTypeVisibility: "VISIBILITY",
	flowscribe.StepTypeManual:     "MANUAL",
}

// WireStepType maps the internal step type to the service's uppercase enum.
func WireStepType(t flowscribe.StepType) (string, error) {
	s, ok := wireStepTypes[t]
	if !ok {
		return "", errors.Wrap(flowscribe.ErrInvalidStepType, "", j.KV("step_type", int(t)))
	}
	return s, nil
}

// ParseWireStepType maps the service's uppercase enum back to the internal
// step type. Together with WireStepType it round trips every valid type.
func ParseWireStepType(s string) (flowscribe.StepType, error) {
	for t, wire := range wireStepTypes {
		if wire == s {
			return t, nil
		}
	}
	return flowscribe.StepTypeUnknown, errors.Wrap(flowscribe.ErrInvalidStepType, "", j.KV("wire_type", s))
}

type wireStep struct {
	Type        string            `json:"type"`
	URL         string            `json:"url"`
	Explanation string            `json:"explanation"`
	Order       int               `json:"order"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type wireFlow struct {
	Name  string              `json:"name"`
	Steps []wireStep          `json:"steps"`
	Meta  *flowscribe.FlowMeta `json:"meta,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Code       string          `json:"code"`
		Message    string          `json:"message"`
		StatusCode int             `json:"statusCode"`
		Details    json.RawMessage `json:"details,omitempty"`
	} `json:"error"`
}

// PushedStep is the server's record of one uploaded step.
type PushedStep struct {
	ID            string `json:"id"`
	ScreenshotURL string `json:"screenshotUrl,omitempty"`
}

// PushResult is the 201 response body for a pushed flow.
type PushResult struct {
	ID    string       `json:"id"`
	Steps []PushedStep `json:"steps"`
}

// Client calls the team flow service.
type Client struct {
	baseURL string
	token   string
	httpCl  *http.Client
	logger  flowscribe.Logger
}

type options struct {
	token  string
	httpCl *http.Client
	logger flowscribe.Logger
}

type Option func(*options)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

func WithHTTPClient(cl *http.Client) Option {
	return func(o *options) {
		o.httpCl = cl
	}
}

func WithLogger(l flowscribe.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	opt := options{
		httpCl: &http.Client{Timeout: 30 * time.Second},
		logger: flowscribe.NoopLogger{},
	}
	for _, o := range opts {
		o(&opt)
	}
	return &Client{
		baseURL: baseURL,
		token:   opt.token,
		httpCl:  opt.httpCl,
		logger:  opt.logger,
	}
}

// PushFlow uploads the flow. Screenshot bytes never leave the local stores;
// the service derives its own screenshot URLs.
func (c *Client) PushFlow(ctx context.Context, flow *flowscribe.Flow) (*PushResult, error) {
	wf := wireFlow{
		Name:  flow.Name,
		Steps: make([]wireStep, 0, len(flow.Steps)),
	}
	if flow.Meta.Description != "" || len(flow.Meta.Tags) > 0 {
		meta := flow.Meta
		wf.Meta = &meta
	}
	for _, step := range flow.Steps {
		wt, err := WireStepType(step.Type)
		if err != nil {
			return nil, err
		}
		ws := wireStep{
			Type:        wt,
			URL:         step.URL,
			Explanation: step.Explanation,
			Order:       step.Order,
		}
		if step.Meta.Selector != "" || step.Meta.ElementText != "" {
			ws.Meta = map[string]string{}
			if step.Meta.Selector != "" {
				ws.Meta["selector"] = step.Meta.Selector
			}
			if step.Meta.ElementText != "" {
				ws.Meta["elementText"] = step.Meta.ElementText
			}
		}
		wf.Steps = append(wf.Steps, ws)
	}

	body, err := flowscribe.Marshal(&wf)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/flows", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build flow push request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug(ctx, "pushing flow", flowscribe.MKV{
		"flow_id": flow.ID, "steps": strconv.Itoa(len(wf.Steps)),
	})

	resp, err := c.httpCl.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "flow service unreachable", j.KV("base_url", c.baseURL))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read flow service response")
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp.StatusCode, raw)
	}

	var res PushResult
	err = flowscribe.Unmarshal(raw, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// decodeError turns the service's structured error envelope into an error
// carrying the code and message; an undecodable body still yields the status.
func decodeError(status int, raw []byte) error {
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error.Code != "" {
		return errors.Wrap(ErrRemoteRejected, env.Error.Message, j.MKV{
			"code":        env.Error.Code,
			"status_code": status,
		})
	}
	return errors.Wrap(ErrRemoteRejected, "", j.KV("status_code", status))
}
