package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type DavConfig struct {
	Root                  string `json:"root"`
	Compress              bool   `json:"compress"`
	PrettyXML             bool   `json:"pretty_xml"`
	PropfindInfinity      bool   `json:"propfind_infinity"`
	RequestTimeoutSec     int64  `json:"request_timeout_sec"`
	DefaultLockTimeoutSec int64  `json:"default_lock_timeout_sec"`
	MaxLockTimeoutSec     int64  `json:"max_lock_timeout_sec"`
	MaxBodySize           int64  `json:"max_body_size"`
}

type Config struct {
	Bind     string            `json:"bind"`
	LogInfo  logger.LogConfig  `json:"log_info"`
	DBFile   string            `json:"db_file"`
	UserInfo map[string]string `json:"user_info"`
	Dav      DavConfig         `json:"dav"`
}

func Parse(f string) (*Config, error) {
	raw, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("read file:%w", err)
	}
	c := &Config{
		Dav: DavConfig{
			Root:                  "/webdav",
			Compress:              true,
			RequestTimeoutSec:     30,
			DefaultLockTimeoutSec: 300,
			MaxLockTimeoutSec:     1800,
			MaxBodySize:           64 * 1024 * 1024,
		},
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("decode json failed, err:%w", err)
	}
	return c, nil
}
