package scenario

import "starcam-link/internal/command"

// BuiltIn returns predefined observing plans.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"focus-and-track": {
			Name:        "Focus and track",
			Description: "Build a static hot pixel map, sweep focus, then settle into a long exposure for tracking.",
			Phases: []Phase{
				{
					Name:        "setup",
					Description: "Dark-sky hot pixel map at a short exposure.",
					Command:     &command.Request{LogOdds: command.Float(1e9), Exposure: command.Float(100), MakeStaticHotPixelMap: true, DynamicHotPixels: true},
					Triggers:    []Trigger{{Event: EventRecords, Value: 3, Next: "focus"}},
				},
				{
					Name:        "focus",
					Description: "Coarse auto-focus sweep across the usual travel.",
					Command: &command.Request{
						LogOdds:              command.Float(1e9),
						Exposure:             command.Float(100),
						UseStaticHotPixelMap: true,
						AutoFocus:            &command.AutoFocus{Start: 1800, End: 3000, Step: 100, PhotosPerStep: 2},
					},
					Triggers: []Trigger{
						{Event: EventFocusSweepDone, Value: 1, Next: "track"},
						{Event: EventElapsed, Value: 600, Next: "track"},
					},
				},
				{
					Name:        "track",
					Description: "Long exposure with the static map applied.",
					Command:     &command.Request{LogOdds: command.Float(1e9), Exposure: command.Float(700), UseStaticHotPixelMap: true, DynamicHotPixels: true},
				},
			},
		},
		"aperture-survey": {
			Name:        "Aperture survey",
			Description: "Step the lens from wide open to f/8, a few frames at each stop.",
			Phases: []Phase{
				{
					Name:     "wide",
					Command:  &command.Request{LogOdds: command.Float(1e9), Exposure: command.Float(100), MaxAperture: true},
					Triggers: []Trigger{{Event: EventRecords, Value: 5, Next: "f4"}},
				},
				{
					Name:     "f4",
					Command:  &command.Request{LogOdds: command.Float(1e9), Exposure: command.Float(100), Aperture: "4.0"},
					Triggers: []Trigger{{Event: EventRecords, Value: 5, Next: "f5.6"}},
				},
				{
					Name:     "f5.6",
					Command:  &command.Request{LogOdds: command.Float(1e9), Exposure: command.Float(200), Aperture: "5.6"},
					Triggers: []Trigger{{Event: EventRecords, Value: 5, Next: "f8"}},
				},
				{
					Name:    "f8",
					Command: &command.Request{LogOdds: command.Float(1e9), Exposure: command.Float(400), Aperture: "8.0"},
				},
			},
		},
	}
}
