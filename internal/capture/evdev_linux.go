//go:build linux

package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// inputEvent matches the kernel's struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const (
	evKey       = 0x01
	valueUp     = 0
	valueDown   = 1
	valueRepeat = 2
)

// evdevKeys maps Linux key codes (input-event-codes.h) to key symbols.
var evdevKeys = map[uint16]string{
	1: "esc",
	16: "q", 17: "w", 18: "e", 19: "r", 20: "t", 21: "y", 22: "u", 23: "i", 24: "o", 25: "p",
	30: "a", 31: "s", 32: "d", 33: "f", 34: "g", 35: "h", 36: "j", 37: "k", 38: "l",
	44: "z", 45: "x", 46: "c", 47: "v", 48: "b", 49: "n", 50: "m",
	14: "backspace", 15: "tab", 28: "enter", 42: "shift", 54: "shift",
	12: "-", 51: ",", 52: ".", 53: "/", 39: ";", 40: "'",
	57: " ",
}

// EvdevSource reads key events from a Linux input device.
type EvdevSource struct {
	path string
}

// OpenEvdev returns a source for the given device, or the first readable
// keyboard when path is empty.
func OpenEvdev(path string) (*EvdevSource, error) {
	if path == "" {
		devices, err := findKeyboardDevices()
		if err != nil {
			return nil, fmt.Errorf("failed to find keyboard devices: %w", err)
		}
		for _, dev := range devices {
			if f, err := os.Open(dev); err == nil {
				_ = f.Close()
				path = dev
				break
			}
		}
		if path == "" {
			return nil, errors.New("no readable keyboard device (need to be in 'input' group or run as root)")
		}
	}
	return &EvdevSource{path: path}, nil
}

// Path returns the device path.
func (s *EvdevSource) Path() string {
	return s.path
}

// Events starts reading the device. The channel is closed when ctx is done
// or the device can no longer be read.
func (s *EvdevSource) Events(ctx context.Context) (<-chan RawEvent, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	out := make(chan RawEvent, 64)
	go func() {
		<-ctx.Done()
		// Unblocks the pending read.
		_ = f.Close()
	}()
	go func() {
		defer close(out)
		r := bufio.NewReader(f)
		for {
			var ev inputEvent
			if err := binary.Read(r, binary.NativeEndian, &ev); err != nil {
				return
			}
			if ev.Type != evKey || ev.Value == valueRepeat {
				continue
			}
			sym, ok := evdevKeys[ev.Code]
			if !ok {
				continue
			}
			kind := KeyDown
			if ev.Value == valueUp {
				kind = KeyUp
			}
			raw := RawEvent{Key: sym, Kind: kind, Time: float64(ev.Time.Nano()) / 1e9}
			select {
			case out <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func findKeyboardDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	var devices []string
	var handler string
	isKeyboard := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					handler = "/dev/input/" + part
				}
			}
			if strings.Contains(line, "kbd") {
				isKeyboard = true
			}
		case line == "":
			if isKeyboard && handler != "" {
				devices = append(devices, handler)
			}
			handler = ""
			isKeyboard = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	matches, _ := filepath.Glob("/dev/input/by-id/*-kbd")
	return append(devices, matches...), nil
}
