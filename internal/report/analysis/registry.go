package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/gymhrv/internal/telemetry/tracing"
)

// Registry is the static catalog of analysis kinds, in display order.
type Registry struct {
	kinds map[KindID]Kind
	order []KindID
}

func NewRegistry() *Registry {
	r := &Registry{
		kinds: make(map[KindID]Kind),
	}
	for _, k := range hrvKinds() {
		r.register(k)
	}
	for _, k := range storeKinds() {
		r.register(k)
	}
	return r
}

func (r *Registry) register(k Kind) {
	if _, ok := r.kinds[k.ID]; ok {
		panic(fmt.Sprintf("analysis kind %s registered twice", k.ID))
	}
	r.kinds[k.ID] = k
	r.order = append(r.order, k.ID)
}

func (r *Registry) Lookup(id KindID) (Kind, bool) {
	k, ok := r.kinds[id]
	return k, ok
}

func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.kinds[id])
	}
	return out
}

// Render runs the kind's renderer for mode. A render that has nothing to
// show returns a NoData artifact instead of an error.
func (r *Registry) Render(ctx context.Context, id KindID, mode Mode, in Input) (_ Artifact, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analysis.render")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	kind, ok := r.kinds[id]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownKind, id)
	}

	fn, err := kind.renderer(mode)
	if err != nil {
		return Artifact{}, err
	}

	artifact, err := fn(ctx, in)
	if err != nil {
		var renderErr *RenderError
		if errors.As(err, &renderErr) && renderErr.Reason == ReasonNoData {
			return noDataArtifact(id, mode, renderErr), nil
		}
		return Artifact{}, err
	}

	artifact.Kind = id
	artifact.Mode = mode
	return artifact, nil
}
