package flowscribe

import (
	"context"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"
)

// ScreenshotRouter relocates oversized step screenshots out of the inline
// record and into the blob store. Implemented by the screenshot pipeline;
// defined here so the store does not depend on the pipeline package.
type ScreenshotRouter interface {
	RouteFlow(ctx context.Context, flow *Flow) error
}

// FlowStore provides validated persistence of flows on top of the key-value
// collaborator. All flows live under a single logical key; writes replace the
// whole document, matching the last-writer durability model of the store.
type FlowStore struct {
	kv     KVStore
	blobs  BlobStore
	router ScreenshotRouter
	logger Logger
	clock  clock.Clock
}

type flowStoreOptions struct {
	router ScreenshotRouter
	logger Logger
	clock  clock.Clock
}

type FlowStoreOption func(*flowStoreOptions)

func WithScreenshotRouter(r ScreenshotRouter) FlowStoreOption {
	return func(o *flowStoreOptions) {
		o.router = r
	}
}

func WithFlowStoreLogger(l Logger) FlowStoreOption {
	return func(o *flowStoreOptions) {
		o.logger = l
	}
}

func WithFlowStoreClock(c clock.Clock) FlowStoreOption {
	return func(o *flowStoreOptions) {
		o.clock = c
	}
}

func NewFlowStore(kv KVStore, blobs BlobStore, opts ...FlowStoreOption) *FlowStore {
	opt := flowStoreOptions{
		logger: NoopLogger{},
		clock:  clock.RealClock{},
	}
	for _, o := range opts {
		o(&opt)
	}

	return &FlowStore{
		kv:     kv,
		blobs:  blobs,
		router: opt.router,
		logger: opt.logger,
		clock:  opt.clock,
	}
}

type flowsDoc struct {
	Flows []Flow `json:"flows"`
}

func (fs *FlowStore) load(ctx context.Context) (*flowsDoc, error) {
	b, err := fs.kv.Get(ctx, KeyFlows)
	if errors.Is(err, ErrKeyNotFound) {
		return &flowsDoc{}, nil
	} else if err != nil {
		return nil, err
	}

	var doc flowsDoc
	err = Unmarshal(b, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (fs *FlowStore) save(ctx context.Context, doc *flowsDoc) error {
	b, err := Marshal(doc)
	if err != nil {
		return err
	}
	return fs.kv.Set(ctx, KeyFlows, b)
}

func (fs *FlowStore) GetAllFlows(ctx context.Context) ([]Flow, error) {
	doc, err := fs.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Flows, nil
}

func (fs *FlowStore) GetFlowByID(ctx context.Context, id string) (*Flow, error) {
	doc, err := fs.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range doc.Flows {
		if doc.Flows[i].ID == id {
			return &doc.Flows[i], nil
		}
	}
	return nil, errors.Wrap(ErrFlowNotFound, "", j.KV("flow_id", id))
}

// SaveFlow sanitises and validates the flow, relocates oversized screenshots
// when a router is configured, stamps UpdatedAt on replacement and persists.
// Nothing is written when validation fails.
func (fs *FlowStore) SaveFlow(ctx context.Context, flow *Flow) error {
	flow.Sanitize()
	if err := flow.Validate(); err != nil {
		return err
	}

	if fs.router != nil {
		err := fs.router.RouteFlow(ctx, flow)
		if err != nil {
			// Routing failure leaves the screenshots inline; the flow itself
			// is still saved.
			fs.logger.Error(ctx, errors.Wrap(err, "screenshot routing failed"))
		}
	}

	doc, err := fs.load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range doc.Flows {
		if doc.Flows[i].ID == flow.ID {
			now := fs.clock.Now()
			flow.UpdatedAt = &now
			doc.Flows[i] = *flow
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Flows = append(doc.Flows, *flow)
	}

	return fs.save(ctx, doc)
}

// DeleteFlow removes the flow and then cascades onto the blob store, removing
// every relocated screenshot keyed under the flow id. The two operations are
// not transactional: a blob cleanup failure after a successful delete is
// logged, not rolled back.
func (fs *FlowStore) DeleteFlow(ctx context.Context, id string) error {
	doc, err := fs.load(ctx)
	if err != nil {
		return err
	}

	found := false
	flows := doc.Flows[:0]
	for _, f := range doc.Flows {
		if f.ID == id {
			found = true
			continue
		}
		flows = append(flows, f)
	}
	if !found {
		return errors.Wrap(ErrFlowNotFound, "", j.KV("flow_id", id))
	}
	doc.Flows = flows

	err = fs.save(ctx, doc)
	if err != nil {
		return err
	}

	err = fs.blobs.DeletePrefix(ctx, id)
	if err != nil {
		fs.logger.Error(ctx, errors.Wrap(err, "orphaned screenshot blobs after flow delete"))
	}
	return nil
}

// ExportFlow serialises a flow for sharing. Relocated screenshots are not
// bundled; the export carries the step records only.
func (fs *FlowStore) ExportFlow(ctx context.Context, id string) ([]byte, error) {
	flow, err := fs.GetFlowByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return Marshal(flow)
}

// ImportFlow deserialises an exported flow and saves it under a fresh identity
// so it can never collide with an existing flow. Blob flags are cleared since
// the exporting side's blob store entries do not travel with the export.
func (fs *FlowStore) ImportFlow(ctx context.Context, data []byte) (*Flow, error) {
	var flow Flow
	err := Unmarshal(data, &flow)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidFlow, "import payload does not parse")
	}

	flow.ID = uuid.New().String()
	flow.CreatedAt = fs.clock.Now()
	flow.UpdatedAt = nil
	for i := range flow.Steps {
		flow.Steps[i].Meta.ScreenshotInBlobStore = false
	}

	err = fs.SaveFlow(ctx, &flow)
	if err != nil {
		return nil, err
	}
	return &flow, nil
}
