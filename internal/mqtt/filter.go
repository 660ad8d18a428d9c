package mqtt

import "github.com/frigate-speciesid/speciesid/internal/frigate"

// Filter selects the events worth classifying.
type Filter struct {
	cameras map[string]struct{}
	object  string
}

// NewFilter builds a filter accepting events from cameras whose label is object.
func NewFilter(cameras []string, object string) Filter {
	set := make(map[string]struct{}, len(cameras))
	for _, c := range cameras {
		set[c] = struct{}{}
	}
	return Filter{cameras: set, object: object}
}

// Match reports whether the event passes both the camera and label checks.
func (f Filter) Match(d *frigate.EventDetails) bool {
	if d == nil {
		return false
	}
	if _, ok := f.cameras[d.Camera]; !ok {
		return false
	}
	return d.Label == f.object
}
