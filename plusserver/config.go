package plusserver

import (
	"fmt"
	"sync"
	"time"
)

// Provider endpoints and library defaults.
const (
	DefaultPutURL       = "https://sms.openit.de/put.php"
	DefaultStateURL     = "https://sms.openit.de/sms-state.php"
	DefaultEncoding     = EncodingISO
	DefaultMaxParts     = 1
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// Text encodings accepted by the provider.
const (
	EncodingISO  = "iso"
	EncodingGSM  = "gsm"
	EncodingUTF8 = "utf-8"
	EncodingUCS2 = "ucs2"
)

// Values is a point-in-time copy of a Config. Zero fields fall back to the
// library defaults when a call is resolved.
type Values struct {
	Username     string
	Password     string
	Project      string
	Orig         string
	Encoding     string
	MaxParts     int
	Timeout      time.Duration
	PutURL       string
	StateURL     string
	PollInterval time.Duration
}

// Setting changes one field of a Config.
type Setting func(*Values)

// Config holds provider credentials and default call options.
//
// A Config is safe for concurrent use, but the ordering of Update calls
// relative to in-flight sends is up to the caller.
type Config struct {
	mu     sync.RWMutex
	values Values
}

// NewConfig returns an isolated Config, independent of the process-wide default.
func NewConfig(settings ...Setting) *Config {
	c := &Config{}
	c.Update(settings...)
	return c
}

// Update merges settings into c. Fields not mentioned keep their values.
// Nothing is validated here; missing credentials surface at call time.
func (c *Config) Update(settings ...Setting) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, apply := range settings {
		if apply != nil {
			apply(&c.values)
		}
	}
}

// Values returns a snapshot of the current configuration.
func (c *Config) Values() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values
}

func (c *Config) String() string {
	v := c.Values()
	if v.Project == "" {
		return fmt.Sprintf("plusserver.Config{%s}", v.Username)
	}
	return fmt.Sprintf("plusserver.Config{%s @ %s}", v.Username, v.Project)
}

func SetCredentials(username, password string) Setting {
	return func(v *Values) {
		v.Username = username
		v.Password = password
	}
}

func SetUsername(username string) Setting {
	return func(v *Values) { v.Username = username }
}

func SetPassword(password string) Setting {
	return func(v *Values) { v.Password = password }
}

// SetProject sets the category shown in the provider's message logs.
func SetProject(project string) Setting {
	return func(v *Values) { v.Project = project }
}

// SetOrig sets the sender id or number.
func SetOrig(orig string) Setting {
	return func(v *Values) { v.Orig = orig }
}

func SetEncoding(encoding string) Setting {
	return func(v *Values) { v.Encoding = encoding }
}

// SetMaxParts sets how many 160 character parts a long text may be split into.
func SetMaxParts(maxParts int) Setting {
	return func(v *Values) { v.MaxParts = maxParts }
}

// SetTimeout sets the network timeout of a single provider call.
func SetTimeout(timeout time.Duration) Setting {
	return func(v *Values) { v.Timeout = timeout }
}

func SetPutURL(url string) Setting {
	return func(v *Values) { v.PutURL = url }
}

func SetStateURL(url string) Setting {
	return func(v *Values) { v.StateURL = url }
}

// SetPollInterval sets the pause between state queries while waiting.
func SetPollInterval(interval time.Duration) Setting {
	return func(v *Values) { v.PollInterval = interval }
}
