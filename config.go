package forum

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 3 * time.Second
	DefaultCloseGrace           = 200 * time.Millisecond
	DefaultOfflineTimeout       = 2 * time.Second
	DefaultDialTimeout          = 10 * time.Second
	DefaultTypingIdle           = time.Second
	DefaultReadLimit            = 1 << 20
)

// RealtimeConfig configures a RealtimeClient. Zero values take defaults.
type RealtimeConfig struct {
	// UserID is our own user id, reported in local presence notifications.
	UserID int `validate:"gte=0"`

	MaxReconnectAttempts int           `validate:"gte=0,lte=1000"`
	ReconnectDelay       time.Duration `validate:"gte=0"`
	DisableReconnect     bool

	// CloseGrace is how long Disconnect waits for the offline frame to flush.
	CloseGrace     time.Duration `validate:"gte=0"`
	OfflineTimeout time.Duration `validate:"gte=0"`
	DialTimeout    time.Duration `validate:"gte=0"`
	ReadLimit      int64         `validate:"gte=0"`

	// Offline receives the REST presence flush on Disconnect. Optional.
	Offline    OfflineFlusher `validate:"-"`
	Dialer     Dialer         `validate:"-"`
	HTTPClient *http.Client   `validate:"-"`
	Logger     *zap.Logger    `validate:"-"`
	Metrics    *Metrics       `validate:"-"`
}

var configValidator = validator.New()

func (c *RealtimeConfig) defaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.CloseGrace == 0 {
		c.CloseGrace = DefaultCloseGrace
	}
	if c.OfflineTimeout == 0 {
		c.OfflineTimeout = DefaultOfflineTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Dialer == nil {
		c.Dialer = &wsDialer{httpClient: c.HTTPClient, readLimit: c.ReadLimit}
	}
}

func (c *RealtimeConfig) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
