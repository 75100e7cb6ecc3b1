// Package config carries the daemon's settings: static values from the
// environment and a dynamic rc file listing extra application directories,
// reloaded live when the file changes.
package config

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

const rcFile = "appdex/appdexd.rc"

var (
	globalConfig *config
	once         sync.Once
)

type config struct {
	static  env
	dynamic rc
	watcher *fsnotify.Watcher
}

type (
	env struct {
		UnixSocket   string `envconfig:"APPDEX_SOCK"`
		DataDir      string `envconfig:"APPDEX_DATA_DIR"`
		Terminal     string `envconfig:"APPDEX_TERMINAL"`
		ListLimit    int    `envconfig:"APPDEX_LIST_LIMIT" default:"9"`
		DebounceSecs int    `envconfig:"APPDEX_DEBOUNCE_SECS" default:"10"`
	}
	rc struct {
		sync.RWMutex
		additionalPaths []string
	}
)

// Init loads the configuration once.
func Init() error {
	var err error
	once.Do(func() {
		globalConfig = &config{}

		if err = envconfig.Process("", &globalConfig.static); err != nil {
			return
		}

		if globalConfig.static.UnixSocket == "" {
			currentUser, uerr := user.Current()
			if uerr != nil {
				err = uerr
				return
			}
			globalConfig.static.UnixSocket = fmt.Sprintf("/tmp/appdex-%s/sock", currentUser.Uid)
		}
		globalConfig.static.UnixSocket = expandPath(globalConfig.static.UnixSocket)

		if globalConfig.static.DataDir == "" {
			globalConfig.static.DataDir = filepath.Join(xdg.DataHome, "appdex")
		}
		globalConfig.static.DataDir = expandPath(globalConfig.static.DataDir)

		if err = globalConfig.loadRC(); err != nil {
			return
		}

		err = globalConfig.setupWatcher()
	})
	return err
}

// Run starts the rc file watcher loop.
func Run() error {
	if globalConfig == nil {
		if err := Init(); err != nil {
			return err
		}
	}

	go globalConfig.watchLoop()
	return nil
}

// Get returns the global config instance.
func Get() *config {
	if globalConfig == nil {
		Init()
	}
	return globalConfig
}

func rcPath() string {
	return filepath.Join(xdg.ConfigHome, rcFile)
}

func (c *config) loadRC() error {
	path := rcPath()

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			file, err = os.Create(path)
			if err != nil {
				return err
			}
			file.Close()
			return nil
		}
		return err
	}
	defer file.Close()

	c.dynamic.Lock()
	defer c.dynamic.Unlock()

	c.dynamic.additionalPaths = []string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.dynamic.additionalPaths = append(c.dynamic.additionalPaths, expandPath(line))
	}

	return scanner.Err()
}

func (c *config) setupWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	c.watcher = watcher
	return watcher.Add(filepath.Dir(rcPath()))
}

func (c *config) watchLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Name == rcPath() && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				if err := c.loadRC(); err != nil {
					log.Warn().Err(err).Msg("reloading rc file failed")
				}
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("rc watcher error")
		}
	}
}

// AppPaths returns the directories to scan for .desktop files: the
// standard locations plus any listed in the rc file.
func (c *config) AppPaths() []string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()

	paths := []string{
		"/usr/share/applications",
		"/usr/local/share/applications",
		expandPath("~/.local/share/applications"),
	}
	return append(paths, c.dynamic.additionalPaths...)
}

// UnixSocket returns the Unix socket path the daemon listens on.
func (c *config) UnixSocket() string {
	return c.static.UnixSocket
}

// DataDir returns the directory holding the snapshot and usage journal.
func (c *config) DataDir() string {
	return c.static.DataDir
}

// SnapshotPath returns the path of the persisted index snapshot.
func (c *config) SnapshotPath() string {
	return filepath.Join(c.static.DataDir, "apps.db")
}

// Terminal returns the terminal emulator used for Terminal=true entries.
func (c *config) Terminal() string {
	if c.static.Terminal != "" {
		return c.static.Terminal
	}
	if term := os.Getenv("TERM"); term != "" {
		return term
	}
	return "xterm"
}

// ListLimit returns the maximum number of ranked results per query.
func (c *config) ListLimit() int {
	if c.static.ListLimit <= 0 {
		return 9
	}
	return c.static.ListLimit
}

// Debounce returns the window over which filesystem events are coalesced
// before one rescan runs.
func (c *config) Debounce() time.Duration {
	if c.static.DebounceSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.static.DebounceSecs) * time.Second
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return strings.Replace(path, "~", home, 1)
	}
	return path
}
