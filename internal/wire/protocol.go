package wire

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownProtocol is returned for a protocol version with no layout table.
var ErrUnknownProtocol = errors.New("unknown protocol version")

// DefaultPort is the camera's historical listening port.
const DefaultPort = 8000

// Protocol pairs the telemetry and command layouts of one schema version. Both sides
// of the link must agree on it; it is chosen by configuration, never by inspecting traffic.
type Protocol struct {
	Version   int
	Telemetry *Layout[TelemetryRecord]
	Command   *Layout[CommandRecord]
	ImageSize int
}

var (
	ProtocolV1 = &Protocol{Version: 1, Telemetry: TelemetryV1, Command: CommandV1, ImageSize: ImageSize}
	ProtocolV2 = &Protocol{Version: 2, Telemetry: TelemetryV2, Command: CommandV2, ImageSize: ImageSize}
)

// LookupProtocol returns the protocol for version.
func LookupProtocol(version int) (*Protocol, error) {
	switch version {
	case 1:
		return ProtocolV1, nil
	case 2:
		return ProtocolV2, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownProtocol, version)
}

// ErrUnknownAperture is returned for an f-number that is not one of FStops.
var ErrUnknownAperture = errors.New("unknown aperture")

// FStops lists the apertures the lens adapter can select, in step order.
var FStops = []string{
	"2.8", "3.0", "3.3", "3.6", "4.0", "4.3", "4.7", "5.1", "5.6", "6.1",
	"6.7", "7.3", "8.0", "8.7", "9.5", "10.3", "11.3", "12.3", "13.4", "14.6",
	"16.0", "17.4", "19.0", "20.7", "22.6", "24.6", "26.9", "29.3", "32.0",
}

// ApertureIndex returns the step index of an f-number such as "5.6".
func ApertureIndex(fnumber string) (int, error) {
	v, err := strconv.ParseFloat(fnumber, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAperture, fnumber)
	}
	return ApertureIndexForValue(v)
}

// ApertureIndexForValue is ApertureIndex for a numeric f-number.
func ApertureIndexForValue(v float64) (int, error) {
	for i, s := range FStops {
		stop, _ := strconv.ParseFloat(s, 64)
		if int(stop*10+0.5) == int(v*10+0.5) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: f/%g", ErrUnknownAperture, v)
}

// ApertureSteps returns the signed number of steps from one f-number to another.
func ApertureSteps(from, to string) (int32, error) {
	a, err := ApertureIndex(from)
	if err != nil {
		return 0, err
	}
	b, err := ApertureIndex(to)
	if err != nil {
		return 0, err
	}
	return int32(b - a), nil
}
