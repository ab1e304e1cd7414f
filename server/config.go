package server

import (
	"time"

	"github.com/xxxsen/davgate/dav"
)

type config struct {
	adapter            dav.IAdapter
	userMap            map[string]string
	davRoot            string
	enableCompress     bool
	prettyXML          bool
	propfindInfinity   bool
	requestTimeout     time.Duration
	defaultLockTimeout time.Duration
	maxLockTimeout     time.Duration
}

type Option func(c *config)

func WithAdapter(a dav.IAdapter) Option {
	return func(c *config) {
		c.adapter = a
	}
}

func WithUser(m map[string]string) Option {
	return func(c *config) {
		c.userMap = m
	}
}

func WithDavRoot(root string) Option {
	return func(c *config) {
		c.davRoot = root
	}
}

func WithCompress(v bool) Option {
	return func(c *config) {
		c.enableCompress = v
	}
}

func WithPrettyXML(v bool) Option {
	return func(c *config) {
		c.prettyXML = v
	}
}

func WithPropfindInfinity(v bool) Option {
	return func(c *config) {
		c.propfindInfinity = v
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		c.requestTimeout = d
	}
}

func WithLockTimeout(def time.Duration, max time.Duration) Option {
	return func(c *config) {
		c.defaultLockTimeout = def
		c.maxLockTimeout = max
	}
}

func applyOpts(opts ...Option) *config {
	c := &config{
		davRoot:            "/webdav",
		enableCompress:     true,
		requestTimeout:     30 * time.Second,
		defaultLockTimeout: 5 * time.Minute,
		maxLockTimeout:     30 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
