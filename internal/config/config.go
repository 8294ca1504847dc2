package config

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the configuration for the application.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	// LogLevel defines the logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL" default:"info"`
	// ServerPort is the port where the HTTP server will listen.
	ServerPort int `mapstructure:"SERVER_PORT" default:"8080"`

	Mongo    MongoConfig    `mapstructure:",squash"`
	Redis    RedisConfig    `mapstructure:",squash"`
	Seller   SellerConfig   `mapstructure:",squash"`
	Shipping ShippingConfig `mapstructure:",squash"`
	Courier  CourierConfig  `mapstructure:",squash"`
	SMTP     SMTPConfig     `mapstructure:",squash"`
	AMQP     AMQPConfig     `mapstructure:",squash"`
	Webhook  WebhookConfig  `mapstructure:",squash"`
}

// MongoConfig holds document store connection details.
type MongoConfig struct {
	URI      string `mapstructure:"MONGO_URI" default:"mongodb://localhost:27017"`
	Database string `mapstructure:"MONGO_DB" default:"naturemedica"`
}

// RedisConfig holds the tracking-cache connection details.
type RedisConfig struct {
	// URL in redis://[:password@]host[:port][/db] form. Empty disables caching.
	URL string `mapstructure:"REDIS_URL" default:""`
	// TrackingTTLSeconds is how long live courier tracking responses are cached.
	TrackingTTLSeconds int `mapstructure:"TRACKING_CACHE_TTL_SECONDS" default:"120"`
}

// SellerConfig holds seller identity passed opaquely to courier payloads.
type SellerConfig struct {
	Name            string `mapstructure:"SELLER_NAME" default:"Nature Medica"`
	Address         string `mapstructure:"SELLER_ADDRESS" default:""`
	GSTIN           string `mapstructure:"SELLER_GSTIN" default:""`
	PickupLocation  string `mapstructure:"PICKUP_LOCATION" default:"Primary"`
	PickupPincode   string `mapstructure:"PICKUP_PINCODE" default:""`
	ReturnWarehouse string `mapstructure:"RETURN_WAREHOUSE" default:"Primary"`
}

// ShippingConfig holds package defaults and the tax assumption used when a
// provider requires taxable/tax-value fields split out of an inclusive price.
type ShippingConfig struct {
	DefaultProvider    string  `mapstructure:"DEFAULT_PROVIDER" default:"shiprocket"`
	GSTRate            float64 `mapstructure:"GST_RATE" default:"0.18"`
	DefaultWeightGrams int     `mapstructure:"DEFAULT_ITEM_WEIGHT_GRAMS" default:"500"`
	DefaultLengthCm    int     `mapstructure:"DEFAULT_BOX_LENGTH_CM" default:"30"`
	DefaultWidthCm     int     `mapstructure:"DEFAULT_BOX_WIDTH_CM" default:"20"`
	DefaultHeightCm    int     `mapstructure:"DEFAULT_BOX_HEIGHT_CM" default:"15"`
}

// CourierConfig holds per-provider credentials and endpoints.
type CourierConfig struct {
	// TimeoutSeconds bounds every courier HTTP call.
	TimeoutSeconds int `mapstructure:"COURIER_TIMEOUT_SECONDS" default:"15"`

	ShiprocketBaseURL  string `mapstructure:"SHIPROCKET_BASE_URL" default:"https://apiv2.shiprocket.in"`
	ShiprocketEmail    string `mapstructure:"SHIPROCKET_EMAIL" default:""`
	ShiprocketPassword string `mapstructure:"SHIPROCKET_PASSWORD" default:""`

	EkartBaseURL      string `mapstructure:"EKART_BASE_URL" default:"https://api.ekartlogistics.com"`
	EkartClientID     string `mapstructure:"EKART_CLIENT_ID" default:""`
	EkartClientSecret string `mapstructure:"EKART_CLIENT_SECRET" default:""`
	EkartVendor       string `mapstructure:"EKART_VENDOR" default:"NATUREMEDICA"`

	DelhiveryBaseURL string `mapstructure:"DELHIVERY_BASE_URL" default:"https://track.delhivery.com"`
	DelhiveryAPIKey  string `mapstructure:"DELHIVERY_API_KEY" default:""`
}

// SMTPConfig holds transactional email settings. Empty host disables email.
type SMTPConfig struct {
	Host     string `mapstructure:"SMTP_HOST" default:""`
	Port     int    `mapstructure:"SMTP_PORT" default:"587"`
	Username string `mapstructure:"SMTP_USERNAME" default:""`
	Password string `mapstructure:"SMTP_PASSWORD" default:""`
	From     string `mapstructure:"SMTP_FROM" default:"orders@naturemedica.in"`
	FromName string `mapstructure:"SMTP_FROM_NAME" default:"Nature Medica"`
}

// AMQPConfig holds the order-event exchange settings. Empty URL disables it.
type AMQPConfig struct {
	URL      string `mapstructure:"AMQP_URL" default:""`
	Exchange string `mapstructure:"AMQP_EXCHANGE" default:"orders"`
}

// WebhookConfig secures inbound courier status callbacks.
type WebhookConfig struct {
	// Token must match the X-Webhook-Token header on courier callbacks.
	Token string `mapstructure:"COURIER_WEBHOOK_TOKEN" default:""`
}

// CourierTimeout returns the bounded timeout for courier HTTP calls.
func (c CourierConfig) CourierTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TrackingTTL returns the cache TTL for live tracking responses.
func (c RedisConfig) TrackingTTL() time.Duration {
	return time.Duration(c.TrackingTTLSeconds) * time.Second
}

// Load loads configuration from .env files and environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// processTags iterates over the struct fields and sets default values in Viper.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			v.BindEnv(key)
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("required") == "true" {
			if val.Field(i).IsZero() {
				key := field.Tag.Get("mapstructure")
				return fmt.Errorf("missing required configuration: %s", key)
			}
		}
	}
	return nil
}
