package bot

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	minInterval = 1
	maxInterval = 1440
)

// AddArgs holds the parsed arguments of /add.
type AddArgs struct {
	PlaylistID      string
	IntervalMinutes int
}

// ParseAddArgs parses "<playlist_id> [minutes]". A missing interval is zero,
// which selects the default.
func ParseAddArgs(args string) (AddArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 || len(parts) > 2 {
		return AddArgs{}, fmt.Errorf("usage: /add <playlist_id> [minutes]")
	}
	out := AddArgs{PlaylistID: parts[0]}
	if len(parts) == 2 {
		mins, err := parseMinutes(parts[1])
		if err != nil {
			return AddArgs{}, err
		}
		out.IntervalMinutes = mins
	}
	return out, nil
}

// ParseIDArg extracts a playlist ID from a command argument string.
func ParseIDArg(args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", fmt.Errorf("playlist ID is required")
	}
	return parts[0], nil
}

// ParseIntervalArgs extracts a playlist ID and interval in minutes.
func ParseIntervalArgs(args string) (string, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "", 0, fmt.Errorf("usage: /interval <id> <minutes>")
	}
	mins, err := parseMinutes(parts[1])
	if err != nil {
		return "", 0, err
	}
	return parts[0], mins, nil
}

// ParseFilterArgs extracts a playlist ID and the rest of the line as a
// title regex. An empty pattern clears the filter.
func ParseFilterArgs(args string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("usage: /filter <id> [regex]")
	}
	var pattern string
	if len(parts) == 2 {
		pattern = strings.TrimSpace(parts[1])
	}
	return parts[0], pattern, nil
}

// ParseSwitch parses on/off style arguments.
func ParseSwitch(args string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", strings.TrimSpace(args))
}

func parseMinutes(s string) (int, error) {
	mins, err := strconv.Atoi(s)
	if err != nil || mins < minInterval || mins > maxInterval {
		return 0, fmt.Errorf("interval must be between %d and %d minutes", minInterval, maxInterval)
	}
	return mins, nil
}
