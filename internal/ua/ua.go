// internal/ua/ua.go
//
// Browser summaries for login logs.
//
// Context
//   Every successful login appends an entry to the account's login log so
//   the owner can spot a session they do not recognise.  The entry names
//   the browser, the operating system, and the device class in plain words
//   ("Firefox 125", "iOS 17.4", "Mobile").  Parse builds that summary from
//   the User-Agent header with uasurfer; nothing outside this package sees
//   uasurfer's enums.
//
// Notes
//   •  uasurfer's enum names carry a type prefix (BrowserChrome, OSLinux);
//      the prefix is dropped and Unknown becomes "".
//   •  Versions keep only their significant parts: 17.0.0 → "17",
//      17.4.0 → "17.4".
//
//------------------------------------------------------------------------------

package ua

import (
	"strconv"
	"strings"

	surfer "github.com/avct/uasurfer"
)

// Device classes.
const (
	Desktop = "Desktop"
	Mobile  = "Mobile"
	Tablet  = "Tablet"
	Other   = "Other"
)

// Agent is the part of a User-Agent a login log keeps.
type Agent struct {
	Browser string `json:"browser,omitempty"` // name and major version
	OS      string `json:"os,omitempty"`      // name and version
	Device  string `json:"device"`
	Bot     bool   `json:"bot,omitempty"`
}

// Parse summarises a raw User-Agent header.  An empty header gives an
// Agent with only Device set to Other.
func Parse(raw string) Agent {
	if strings.TrimSpace(raw) == "" {
		return Agent{Device: Other}
	}
	u := surfer.Parse(raw)

	return Agent{
		Browser: label(enumName(u.Browser.Name.String(), "Browser"), version(u.Browser.Version, 1)),
		OS:      label(enumName(u.OS.Name.String(), "OS"), version(u.OS.Version, 2)),
		Device:  deviceClass(u.DeviceType),
		Bot:     u.IsBot(),
	}
}

// String renders the agent for a notice mail, e.g.
// "Firefox 125 on Linux (Desktop)".
func (a Agent) String() string {
	var b strings.Builder
	b.WriteString(orUnknown(a.Browser, "unknown browser"))
	b.WriteString(" on ")
	b.WriteString(orUnknown(a.OS, "unknown system"))
	b.WriteString(" (")
	b.WriteString(a.Device)
	b.WriteString(")")
	return b.String()
}

func deviceClass(d surfer.DeviceType) string {
	switch d {
	case surfer.DeviceComputer:
		return Desktop
	case surfer.DeviceTablet:
		return Tablet
	case surfer.DevicePhone, surfer.DeviceWearable:
		return Mobile
	}
	return Other
}

// enumName strips the type prefix from a uasurfer enum name.
func enumName(s, prefix string) string {
	s = strings.TrimPrefix(s, prefix)
	if s == "Unknown" {
		return ""
	}
	return s
}

func label(name, ver string) string {
	if name == "" || ver == "" {
		return name
	}
	return name + " " + ver
}

// version renders at most depth parts of v, without trailing zeros.
func version(v surfer.Version, depth int) string {
	parts := []int{int(v.Major), int(v.Minor), int(v.Patch)}[:depth]
	for len(parts) > 0 && parts[len(parts)-1] == 0 {
		parts = parts[:len(parts)-1]
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strconv.Itoa(p)
	}
	return strings.Join(out, ".")
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
