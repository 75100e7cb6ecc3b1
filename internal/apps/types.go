package apps

import (
	"time"
)

// App is a single indexed application entry.
type App struct {
	ID         string    `msgpack:"id"`          // Stable identifier, assigned on first sight of SourcePath
	Name       string    `msgpack:"name"`        // Display name used for matching
	Exec       string    `msgpack:"exec"`        // Command to execute
	Icon       string    `msgpack:"icon"`        // Icon name or path
	Terminal   bool      `msgpack:"terminal"`    // Whether to run in a terminal
	SourcePath string    `msgpack:"source_path"` // Path to the originating .desktop file
	UsageCount uint64    `msgpack:"usage_count"` // Number of successful launches
	LastUsed   time.Time `msgpack:"last_used"`   // Zero until first launch
}
