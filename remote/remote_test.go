package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/remote"
)

func TestWireStepTypeRoundTrip(t *testing.T) {
	for _, st := range []flowscribe.StepType{
		flowscribe.StepTypeClick,
		flowscribe.StepTypeNavigation,
		flowscribe.StepTypeInput,
		flowscribe.StepTypeVisibility,
		flowscribe.StepTypeManual,
	} {
		wire, err := remote.WireStepType(st)
		jtest.RequireNil(t, err)

		back, err := remote.ParseWireStepType(wire)
		jtest.RequireNil(t, err)
		require.Equal(t, st, back)
	}

	_, err := remote.WireStepType(flowscribe.StepTypeUnknown)
	jtest.Require(t, flowscribe.ErrInvalidStepType, err)
	_, err = remote.ParseWireStepType("click")
	jtest.Require(t, flowscribe.ErrInvalidStepType, err)
	_, err = remote.ParseWireStepType("DRAG")
	jtest.Require(t, flowscribe.ErrInvalidStepType, err)
}

func pushableFlow() *flowscribe.Flow {
	return &flowscribe.Flow{
		ID:        "flow-1",
		Name:      "Onboarding",
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Steps: []flowscribe.Step{
			{
				ID:          "step-0",
				Type:        flowscribe.StepTypeClick,
				URL:         "https://example.com",
				Explanation: "Click Get started",
				Order:       0,
				Meta:        flowscribe.StepMeta{Selector: `[data-testid="start"]`},
			},
			{
				ID:          "step-1",
				Type:        flowscribe.StepTypeNavigation,
				URL:         "https://example.com/setup",
				Explanation: "Navigate to setup",
				Order:       1,
			},
		},
	}
}

func TestPushFlow(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/flows", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		jtest.RequireNil(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"id": "srv-flow-9",
			"steps": [
				{"id": "srv-step-0", "screenshotUrl": "https://cdn.example.com/s0.jpg"},
				{"id": "srv-step-1"}
			]
		}`))
	}))
	defer srv.Close()

	cl := remote.NewClient(srv.URL, remote.WithToken("secret-token"))
	res, err := cl.PushFlow(context.Background(), pushableFlow())
	jtest.RequireNil(t, err)

	require.Equal(t, "Bearer secret-token", gotAuth)
	require.Equal(t, "srv-flow-9", res.ID)
	require.Len(t, res.Steps, 2)
	require.Equal(t, "https://cdn.example.com/s0.jpg", res.Steps[0].ScreenshotURL)

	// Step types cross the wire in the service's uppercase enum.
	steps := gotBody["steps"].([]any)
	require.Len(t, steps, 2)
	require.Equal(t, "CLICK", steps[0].(map[string]any)["type"])
	require.Equal(t, "NAVIGATION", steps[1].(map[string]any)["type"])
}

func TestPushFlowRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHENTICATED","message":"token expired","statusCode":401}}`))
	}))
	defer srv.Close()

	cl := remote.NewClient(srv.URL)
	_, err := cl.PushFlow(context.Background(), pushableFlow())
	jtest.Require(t, remote.ErrRemoteRejected, err)
}

func TestPushFlowUndecodableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	cl := remote.NewClient(srv.URL)
	_, err := cl.PushFlow(context.Background(), pushableFlow())
	jtest.Require(t, remote.ErrRemoteRejected, err)
}

func TestPushFlowInvalidStepType(t *testing.T) {
	flow := pushableFlow()
	flow.Steps[0].Type = flowscribe.StepTypeUnknown

	cl := remote.NewClient("http://127.0.0.1:0")
	_, err := cl.PushFlow(context.Background(), flow)
	jtest.Require(t, flowscribe.ErrInvalidStepType, err)
}
