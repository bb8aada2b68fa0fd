package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sync"

	"github.com/ZenLiuCN/fn"
	"github.com/spf13/viper"
)

// Store persists module toggles in a TOML file:
//
//	[modules.pvs]
//	enabled = false
//	debug = 2
type Store struct {
	v    *viper.Viper
	path string
	mu   sync.Mutex
}

// OpenStore reads path when it exists. The file is created on the first change.
func OpenStore(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var missing viper.ConfigFileNotFoundError
		if !errors.As(err, &missing) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return &Store{v: v, path: path}, nil
}

func enabledKey(name string) string { return "modules." + name + ".enabled" }
func debugKey(name string) string   { return "modules." + name + ".debug" }

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Enabled(name string, def bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(enabledKey(name)) {
		return def
	}
	return s.v.GetBool(enabledKey(name))
}

func (s *Store) SetEnabled(name string, enabled bool) error {
	return s.set(enabledKey(name), enabled)
}

func (s *Store) DebugLevel(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetInt(debugKey(name))
}

func (s *Store) SetDebugLevel(name string, level int) error {
	if level < 0 {
		return fmt.Errorf("negative debug level %d", level)
	}
	return s.set(debugKey(name), level)
}

// Names lists the modules the file has settings for.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := fn.MapKeys(s.v.GetStringMap("modules"))
	slices.Sort(v)
	return v
}

func (s *Store) set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// ErrOverridden is returned when enabling a module the environment disables.
var ErrOverridden = errors.New("disabled by HOLYHOOK_DISABLE")

// Overlay forces the named modules disabled without touching the file.
type Overlay struct {
	*Store
	disabled []string
}

func NewOverlay(s *Store, disabled ...string) *Overlay {
	return &Overlay{Store: s, disabled: disabled}
}

func (o *Overlay) Enabled(name string, def bool) bool {
	if slices.Contains(o.disabled, name) {
		return false
	}
	return o.Store.Enabled(name, def)
}

// SetEnabled refuses to enable a forced-disabled module. Disabling it is still persisted.
func (o *Overlay) SetEnabled(name string, enabled bool) error {
	if enabled && slices.Contains(o.disabled, name) {
		return fmt.Errorf("enable %s: %w", name, ErrOverridden)
	}
	return o.Store.SetEnabled(name, enabled)
}
