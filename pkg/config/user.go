/*
mfctext
Copyright (C) 2023, 2024 Callan Barrett
Copyright (C) 2023 Gareth Jones

This file is part of mfctext.

mfctext is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mfctext is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mfctext.  If not, see <http://www.gnu.org/licenses/>.
*/

package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"
)

const UserConfigEnv = "MFCTEXT_CONFIG"
const UserAppPathEnv = "MFCTEXT_APP_PATH"

type MfcTextConfig struct {
	Reader         []string `ini:"reader,omitempty,allowshadow"`
	ProbeDevice    bool     `ini:"probe_device"`
	ConsoleLogging bool     `ini:"console_logging"`
	Debug          bool     `ini:"debug"`
}

type MifareConfig struct {
	Key             string   `ini:"key"`
	KeyType         string   `ini:"key_type"`
	WriteSector     int      `ini:"write_sector"`
	Decoders        []string `ini:"decoders,omitempty,allowshadow"`
	IncludeTrailers bool     `ini:"include_trailers"`
}

type ApiConfig struct {
	Port         string `ini:"port"`
	Discovery    bool   `ini:"discovery"`
	InstanceName string `ini:"instance_name,omitempty"`
}

type UserConfig struct {
	mu      sync.RWMutex
	AppPath string        `ini:"-"`
	IniPath string        `ini:"-"`
	MfcText MfcTextConfig `ini:"mfctext"`
	Mifare  MifareConfig  `ini:"mifare"`
	Api     ApiConfig     `ini:"api"`
}

// DefaultUserConfig returns the config written to disk when none exists.
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		MfcText: MfcTextConfig{
			ProbeDevice: true,
		},
		Mifare: MifareConfig{
			Key:         "FFFFFFFFFFFF",
			KeyType:     "B",
			WriteSector: DefaultWriteSector,
		},
		Api: ApiConfig{
			Port:      DefaultApiPort,
			Discovery: true,
		},
	}
}

func (c *UserConfig) GetReader() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MfcText.Reader
}

func (c *UserConfig) SetReader(reader []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MfcText.Reader = reader
}

func (c *UserConfig) GetProbeDevice() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MfcText.ProbeDevice
}

func (c *UserConfig) SetProbeDevice(probeDevice bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MfcText.ProbeDevice = probeDevice
}

func (c *UserConfig) GetConsoleLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MfcText.ConsoleLogging
}

func (c *UserConfig) GetDebug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MfcText.Debug
}

func (c *UserConfig) SetDebug(debug bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MfcText.Debug = debug
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func (c *UserConfig) GetKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Mifare.Key
}

func (c *UserConfig) SetKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mifare.Key = key
}

func (c *UserConfig) GetKeyType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Mifare.KeyType
}

func (c *UserConfig) SetKeyType(keyType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mifare.KeyType = strings.ToUpper(keyType)
}

// GetWriteSector returns the sector text is written to. Sector 0 holds the
// manufacturer block so it falls back to the default.
func (c *UserConfig) GetWriteSector() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Mifare.WriteSector <= 0 {
		return DefaultWriteSector
	}
	return c.Mifare.WriteSector
}

func (c *UserConfig) SetWriteSector(sector int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mifare.WriteSector = sector
}

func (c *UserConfig) GetDecoders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Mifare.Decoders
}

func (c *UserConfig) SetDecoders(decoders []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mifare.Decoders = decoders
}

func (c *UserConfig) GetIncludeTrailers() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Mifare.IncludeTrailers
}

func (c *UserConfig) SetIncludeTrailers(include bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mifare.IncludeTrailers = include
}

func (c *UserConfig) GetApiPort() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Api.Port == "" {
		return DefaultApiPort
	}
	return c.Api.Port
}

func (c *UserConfig) GetDiscovery() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Api.Discovery
}

func (c *UserConfig) GetInstanceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Api.InstanceName
}

func (c *UserConfig) LoadConfig() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, err := ini.ShadowLoad(c.IniPath)
	if err != nil {
		return err
	}

	err = cfg.StrictMapTo(c)
	if err != nil {
		return err
	}

	return nil
}

func (c *UserConfig) SaveConfig() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := ini.Empty()

	ini.PrettyEqual = true
	ini.PrettyFormat = false

	err := cfg.ReflectFrom(c)
	if err != nil {
		return err
	}

	err = cfg.SaveTo(c.IniPath)
	if err != nil {
		return err
	}

	return nil
}

func NewUserConfig(defaultConfig *UserConfig) (*UserConfig, error) {
	iniPath := os.Getenv(UserConfigEnv)

	exePath, err := os.Executable()
	if err != nil {
		return defaultConfig, err
	}

	appPath := os.Getenv(UserAppPathEnv)
	if appPath != "" {
		exePath = appPath
	}

	if iniPath == "" {
		iniPath = filepath.Join(filepath.Dir(exePath), AppName+".ini")
	}

	defaultConfig.AppPath = exePath
	defaultConfig.IniPath = iniPath

	if _, err := os.Stat(iniPath); os.IsNotExist(err) {
		// create a blank one on disk
		err := defaultConfig.SaveConfig()
		if err != nil {
			log.Error().Err(err).Msg("failed to save new user config to disk")
			return defaultConfig, err
		}

		return defaultConfig, nil
	}

	err = defaultConfig.LoadConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to load user config")
		return defaultConfig, err
	}

	return defaultConfig, nil
}
