package generation

import (
	"fmt"

	"github.com/phrazzld/genflow/internal/domain"
)

// Router selects gateways by task kind for submissions and by name for
// callbacks and polls.
type Router struct {
	byKind map[domain.GenerationKind]Gateway
	byName map[string]Gateway
}

// NewRouter creates a Router that sends video kinds to video and image kinds
// to image. Additional gateways are reachable by name only, so tasks created
// under a previous configuration can still be reconciled.
func NewRouter(video, image Gateway, additional ...Gateway) *Router {
	r := &Router{
		byKind: make(map[domain.GenerationKind]Gateway),
		byName: make(map[string]Gateway),
	}
	if video != nil {
		r.byKind[domain.KindVideoGenerate] = video
		r.byKind[domain.KindVideoExtend] = video
		r.byName[video.Name()] = video
	}
	if image != nil {
		r.byKind[domain.KindImageGenerate] = image
		r.byName[image.Name()] = image
	}
	for _, g := range additional {
		if g != nil {
			r.byName[g.Name()] = g
		}
	}
	return r
}

// ForKind returns the gateway that handles submissions of kind.
func (r *Router) ForKind(kind domain.GenerationKind) (Gateway, error) {
	g, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway for kind %q", ErrUnknownProvider, kind)
	}
	return g, nil
}

// ByName returns the gateway registered under name.
func (r *Router) ByName(name string) (Gateway, error) {
	g, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return g, nil
}
