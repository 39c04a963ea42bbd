// Gmproto builds, parses, and validates the ASCII control commands
// understood by the detector's command channel. Commands are a single
// letter, optionally followed by a numeric parameter; a bare letter
// echoes the current setting. The binary interval stream on the data
// channel never passes through this package.
package gmproto

import (
	"fmt"
	"strconv"
	"strings"
)

// Stream modes for the b command.
const (
	StreamOff          = 0 // stop streaming
	StreamOnReady      = 1 // send a reading when the measurement completes
	StreamNow          = 2 // send a single reading immediately
	StreamNowThenReady = 3 // send now, then on each completed measurement
	StreamEvery50ms    = 4 // send on a fixed 50 ms cadence
	StreamSepComma     = 5 // separate values with a comma
	StreamSepSemicolon = 6 // separate values with a semicolon
	StreamSepSpace     = 7 // separate values with a space
	StreamSepTab       = 8 // separate values with a tab
)

// Tube voltage limits for the j command, in volts.
const (
	MinVoltage = 300
	MaxVoltage = 700
)

// Count-time presets for the f command.
const (
	CountTimeInfinite = 0
	CountTime1s       = 1
	CountTime10s      = 2
	CountTime60s      = 3
	CountTime100s     = 4
	CountTime300s     = 5
)

// countTimeSeconds maps f presets to their duration in seconds. Preset 0
// counts until cleared.
var countTimeSeconds = [...]int{0, 1, 10, 60, 100, 300}

// commandSpec describes one command letter: whether it carries a numeric
// parameter and, if so, the inclusive range the device accepts.
type commandSpec struct {
	takesParam bool
	min, max   int
}

var commandSpecs = map[byte]commandSpec{
	'b': {takesParam: true, min: 0, max: 8},                     // stream/display mode
	'j': {takesParam: true, min: MinVoltage, max: MaxVoltage},   // tube voltage
	'o': {takesParam: true, min: 0, max: 1},                     // repeat mode
	's': {takesParam: true, min: 0, max: 1},                     // counting on/off
	'U': {takesParam: true, min: 0, max: 3},                     // speaker bits
	'f': {takesParam: true, min: 0, max: len(countTimeSeconds) - 1}, // count-time preset
	'w': {},                                                     // clear counts
	'c': {},                                                     // copyright string
	'v': {},                                                     // firmware version
}

// Command is one parsed control command.
type Command struct {
	Letter   byte
	Param    int
	HasParam bool
}

// String renders the command in wire form, without the trailing newline.
func (c Command) String() string {
	if c.HasParam {
		return fmt.Sprintf("%c%d", c.Letter, c.Param)
	}
	return string(c.Letter)
}

// Parse checks a raw command against the device's command set and
// returns its parsed form. A bare parameterized letter is a query for
// the current setting and is valid.
func Parse(raw string) (Command, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Command{}, fmt.Errorf("empty command")
	}

	letter := trimmed[0]
	spec, ok := commandSpecs[letter]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", string(letter))
	}

	rest := trimmed[1:]
	if rest == "" {
		return Command{Letter: letter}, nil
	}
	if !spec.takesParam {
		return Command{}, fmt.Errorf("command %q takes no parameter, got %q", string(letter), rest)
	}

	n, err := strconv.Atoi(rest)
	if err != nil {
		return Command{}, fmt.Errorf("command %q parameter %q is not numeric", string(letter), rest)
	}
	if n < spec.min || n > spec.max {
		return Command{}, fmt.Errorf("command %q parameter %d out of range %d..%d", string(letter), n, spec.min, spec.max)
	}

	return Command{Letter: letter, Param: n, HasParam: true}, nil
}

// Validate reports whether a raw command is acceptable to forward to the
// device. The API layer gates its command endpoint with this.
func Validate(raw string) error {
	_, err := Parse(raw)
	return err
}

// SetStream selects the b stream/display mode.
func SetStream(mode int) (string, error) {
	return build('b', mode)
}

// SetVoltage sets the GM tube voltage in volts.
func SetVoltage(volts int) (string, error) {
	return build('j', volts)
}

// SetRepeat switches measurement repeat mode on or off.
func SetRepeat(on bool) string {
	return mustBuild('o', boolParam(on))
}

// SetCounting starts or stops the counting process.
func SetCounting(on bool) string {
	return mustBuild('s', boolParam(on))
}

// SetSpeaker composes the U speaker bits: pulse click and ready chime.
func SetSpeaker(pulse, ready bool) string {
	return mustBuild('U', boolParam(pulse)+2*boolParam(ready))
}

// SetCountTime selects the f count-time preset.
func SetCountTime(preset int) (string, error) {
	return build('f', preset)
}

// ClearCounts resets the device's count register.
func ClearCounts() string { return "w" }

// CopyrightInfo requests the device's copyright string.
func CopyrightInfo() string { return "c" }

// FirmwareVersion requests the device's firmware version string.
func FirmwareVersion() string { return "v" }

// Query returns the bare form of a parameterized command, which makes
// the device echo the current setting.
func Query(letter byte) (string, error) {
	spec, ok := commandSpecs[letter]
	if !ok {
		return "", fmt.Errorf("unknown command %q", string(letter))
	}
	if !spec.takesParam {
		return "", fmt.Errorf("command %q has no setting to query", string(letter))
	}
	return string(letter), nil
}

// CountTimeSeconds reports the duration in seconds of an f preset.
// Preset 0 returns 0, meaning the device counts until cleared.
func CountTimeSeconds(preset int) (int, error) {
	if preset < 0 || preset >= len(countTimeSeconds) {
		return 0, fmt.Errorf("count-time preset %d out of range 0..%d", preset, len(countTimeSeconds)-1)
	}
	return countTimeSeconds[preset], nil
}

func build(letter byte, param int) (string, error) {
	cmd := Command{Letter: letter, Param: param, HasParam: true}
	if err := Validate(cmd.String()); err != nil {
		return "", err
	}
	return cmd.String(), nil
}

func mustBuild(letter byte, param int) string {
	cmd, err := build(letter, param)
	if err != nil {
		// Reachable only through a bug in this package's own tables.
		panic(err)
	}
	return cmd
}

func boolParam(b bool) int {
	if b {
		return 1
	}
	return 0
}
