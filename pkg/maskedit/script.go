package maskedit

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"bcdiprep/internal/models"
)

// Script is a recorded editing session that can be replayed without a UI:
//
//	axis: 0
//	width: 3
//	vmax: 100
//	projection: false
//	events:
//	  - key: u
//	  - key: m
//	    x: 12
//	    y: 30
//	  - click: [10.5, 20]
//	  - key: p
type Script struct {
	Axis       int           `yaml:"axis"`
	Width      int           `yaml:"width"`
	VMax       float64       `yaml:"vmax"`
	Projection bool          `yaml:"projection"`
	Events     []ScriptEvent `yaml:"events"`
}

// ScriptEvent is either a key press at (x, y) or a click at click[0], click[1]
type ScriptEvent struct {
	Key   string    `yaml:"key,omitempty"`
	X     float64   `yaml:"x,omitempty"`
	Y     float64   `yaml:"y,omitempty"`
	Click []float64 `yaml:"click,omitempty,flow"`
}

// ParseScript decodes a YAML editing session. Unknown fields are rejected.
func ParseScript(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	script := &Script{Width: DefaultOptions().Width, VMax: DefaultOptions().VMax}
	if err := dec.Decode(script); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: failed to parse mask script: %v", models.ErrInvalidConfiguration, err)
	}
	if _, err := script.ToEvents(); err != nil {
		return nil, err
	}
	return script, nil
}

// Options returns the editor options of the session
func (s *Script) Options() Options {
	return Options{Width: s.Width, VMax: s.VMax, Projection: s.Projection}
}

// ToEvents converts the session to editor events
func (s *Script) ToEvents() ([]Event, error) {
	events := make([]Event, 0, len(s.Events))
	for i, e := range s.Events {
		switch {
		case e.Click != nil && e.Key != "":
			return nil, fmt.Errorf("%w: event %d is both a key and a click", models.ErrInvalidConfiguration, i)
		case e.Click != nil:
			if len(e.Click) != 2 {
				return nil, fmt.Errorf("%w: click %d needs [x, y], got %v", models.ErrInvalidConfiguration, i, e.Click)
			}
			events = append(events, Event{Kind: Click, X: e.Click[0], Y: e.Click[1]})
		case e.Key != "":
			events = append(events, Event{Kind: KeyPress, Key: e.Key, X: e.X, Y: e.Y})
		default:
			return nil, fmt.Errorf("%w: event %d has neither key nor click", models.ErrInvalidConfiguration, i)
		}
	}
	return events, nil
}
