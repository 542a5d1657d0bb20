// Package diag renders a vm.Space's region and gap layout as a
// github.com/google/pprof profile, so an address space can be inspected
// with `go tool pprof` the way the teacher exposes kernel state through
// its D_PROF profiling device (defs.D_PROF).
package diag

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"

	"memspace/vm"
)

// Snapshot captures a vm.Space's current layout. One sample is emitted
// per region and per gap, each weighted by its page count, so aggregate
// commands like `pprof -top` show where an address space's virtual
// range is actually going.
func Snapshot(s *vm.Space) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "pages", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "space", Unit: "snapshot"},
		Period:     1,
	}

	funcs := make(map[string]*profile.Function)
	nextID := uint64(1)
	locationFor := func(name string) *profile.Location {
		fn, ok := funcs[name]
		if !ok {
			fn = &profile.Function{ID: nextID, Name: name, SystemName: name}
			nextID++
			funcs[name] = fn
			p.Function = append(p.Function, fn)
		}
		loc := &profile.Location{
			ID:   nextID,
			Line: []profile.Line{{Function: fn}},
		}
		nextID++
		p.Location = append(p.Location, loc)
		return loc
	}

	for _, r := range s.Regions() {
		name := fmt.Sprintf("region@%#x[%s]", r.Begin, flagString(r.Flags))
		loc := locationFor(name)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(r.Pages)},
			Label: map[string][]string{
				"kind":   {"region"},
				"shared": {fmt.Sprint(r.Shared)},
			},
			NumLabel: map[string][]int64{
				"used_pages": {int64(r.UsedPages)},
			},
		})
	}

	for _, g := range s.Gaps() {
		name := fmt.Sprintf("gap@%#x", g.Begin)
		loc := locationFor(name)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(g.Pages)},
			Label:    map[string][]string{"kind": {"gap"}},
		})
	}

	return p
}

// Write renders Snapshot(s) in pprof's gzip-compressed wire format.
func Write(w io.Writer, s *vm.Space) error {
	return Snapshot(s).Write(w)
}

func flagString(f vm.Flags) string {
	s := ""
	if f&vm.FlagWrite != 0 {
		s += "W"
	}
	if f&vm.FlagUser != 0 {
		s += "U"
	}
	if f&vm.FlagStack != 0 {
		s += "S"
	}
	if s == "" {
		return "-"
	}
	return s
}
