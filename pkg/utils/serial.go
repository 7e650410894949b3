package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

type SerialDevice struct {
	Vid string
	Pid string
}

// Devices which show up as serial ports but are never PN532 readers.
var ignoreDevices = []SerialDevice{
	// Sinden Lightgun
	{Vid: "16c0", Pid: "0f38"},
	{Vid: "16c0", Pid: "0f39"},
	{Vid: "16d0", Pid: "0f38"},
	{Vid: "16d0", Pid: "0f39"},
	// Arduino Leonardo/Micro
	{Vid: "2341", Pid: "8036"},
	{Vid: "2341", Pid: "8037"},
}

func IgnoreSerialDevice(vid, pid string) bool {
	vid = strings.ToLower(vid)
	pid = strings.ToLower(pid)
	for _, v := range ignoreDevices {
		if vid == v.Vid && pid == v.Pid {
			return true
		}
	}
	return false
}

// stableLinuxPath maps a tty name to its /dev/serial/by-id link, which
// survives re-plugging, when one exists.
func stableLinuxPath(name string) string {
	byId := "/dev/serial/by-id"

	entries, err := os.ReadDir(byId)
	if err != nil {
		return name
	}

	for _, e := range entries {
		link := filepath.Join(byId, e.Name())
		target, err := filepath.EvalSymlinks(link)
		if err != nil {
			continue
		}
		if target == name {
			return link
		}
	}

	return name
}

func validPortName(name string) bool {
	switch runtime.GOOS {
	case "darwin":
		return strings.HasPrefix(name, "/dev/tty.")
	case "windows":
		return strings.HasPrefix(name, "COM")
	default:
		return true
	}
}

// GetSerialDeviceList returns serial ports which could have a reader attached,
// skipping known devices which are something else.
func GetSerialDeviceList() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		log.Debug().Err(err).Msg("detailed port list failed, using basic list")
		names, err := serial.GetPortsList()
		if err != nil {
			return nil, err
		}
		var devices []string
		for _, name := range names {
			if validPortName(name) {
				devices = append(devices, name)
			}
		}
		return devices, nil
	}

	var devices []string
	for _, p := range ports {
		if !validPortName(p.Name) {
			continue
		}

		if runtime.GOOS == "linux" && !p.IsUSB {
			// onboard uarts are never hotplugged readers
			continue
		}

		if p.IsUSB && IgnoreSerialDevice(p.VID, p.PID) {
			log.Debug().Msgf("ignoring serial device: %s (%s:%s)", p.Name, p.VID, p.PID)
			continue
		}

		name := p.Name
		if runtime.GOOS == "linux" {
			name = stableLinuxPath(name)
		}

		devices = append(devices, name)
	}

	return devices, nil
}
