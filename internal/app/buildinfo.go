package app

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
)

const dateLayout = "2006-01-02"

// BuildInfo is what `xbeectl -version` prints.
type BuildInfo struct {
	Version   string
	Date      string
	GoVersion string
	Platform  string
}

func CurrentBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   BuildVersion(),
		Date:      BuildDateYMD(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (b BuildInfo) String() string {
	var sb strings.Builder
	sb.WriteString(Name)
	sb.WriteByte(' ')
	sb.WriteString(b.Version)
	if b.Date != "" {
		fmt.Fprintf(&sb, " (%s)", b.Date)
	}
	if b.GoVersion != "" {
		fmt.Fprintf(&sb, " %s", b.GoVersion)
	}
	if b.Platform != "" {
		fmt.Fprintf(&sb, " %s", b.Platform)
	}

	return sb.String()
}

func BuildVersion() string {
	if v := strings.TrimSpace(Version); v != "" {
		return v
	}

	return "dev"
}

// BuildDateYMD trims an RFC 3339 or date-prefixed build stamp to its date.
// Anything unrecognised is returned unchanged.
func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	switch {
	case raw == "":
		return ""
	case len(raw) < len(dateLayout):
		return raw
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, raw[:len(dateLayout)]); err == nil {
		return raw[:len(dateLayout)]
	}

	return raw
}
