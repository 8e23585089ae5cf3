package server

import "time"

const (
	defaultPort            = 8070
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 120 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultCORSMaxAge      = 12 * time.Hour
)

// Config holds the HTTP server settings.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Debug           bool
	ServiceName     string
	ServiceVersion  string
	CORS            CORSConfig
}

// CORSConfig controls the CORS middleware. An empty AllowedOrigins list
// disables CORS headers.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.ServiceName == "" {
		c.ServiceName = "link-sweeper"
	}
	c.CORS.SetDefaults()
}

// SetDefaults fills zero values.
func (c *CORSConfig) SetDefaults() {
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader}
	}
	if c.MaxAge == 0 {
		c.MaxAge = defaultCORSMaxAge
	}
}
