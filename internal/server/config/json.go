package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "10m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. Before unmarshalling it is seeded from the current
// Config, so keys absent from the file keep their defaults.
type JsonConfig struct {
	EndpointAddr string `json:"endpoint_addr"`
	DatabaseDSN  string `json:"database_dsn"`

	MinPasswordStrength int `json:"min_password_strength"`
	PasswordHashRounds  int `json:"password_hash_rounds"`
	PasswordSaltSize    int `json:"password_salt_size"`

	RegistrationTokenLifetime timex.Duration `json:"registration_token_lifetime"`
	ChangeEmailTokenLifetime  timex.Duration `json:"change_email_token_lifetime"`
	PasswordTokenLifetime     timex.Duration `json:"password_token_lifetime"`
	AccessTokenLifetime       timex.Duration `json:"access_token_lifetime"`
	RefreshTokenLifetime      timex.Duration `json:"refresh_token_lifetime"`

	MaxActiveNewcomersWithSameEmail  int `json:"max_active_newcomers_with_same_email"`
	MaxActiveChangeSameEmailRequests int `json:"max_active_change_same_email_requests"`
	MaxActiveUserPasswordTokens      int `json:"max_active_user_password_tokens"`

	TransactionRetries             int            `json:"transaction_retries"`
	TransactionRetryIntervalFirst  timex.Duration `json:"transaction_retry_interval_first"`
	TransactionRetryIntervalFactor float64        `json:"transaction_retry_interval_factor"`

	MailDomain                 string `json:"mail_domain"`
	MailgunAPIKey              string `json:"mailgun_api_key"`
	MailFrom                   string `json:"mail_from"`
	RegisterVerifyLinkTemplate string `json:"register_verify_link_template"`
	ChangeEmailLinkTemplate    string `json:"change_email_link_template"`
	ResetPasswordLinkTemplate  string `json:"reset_password_link_template"`
	MailQueueSize              int    `json:"mail_queue_size"`
	MailWorkers                int    `json:"mail_workers"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics: a broken config file
// must not silently start the server with defaults.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := fromConfig(config)

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

// fromConfig seeds the DTO with current values so partial files overlay
// rather than reset.
func fromConfig(config *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddr: config.EndpointAddr,
		DatabaseDSN:  config.DatabaseDSN,

		MinPasswordStrength: config.MinPasswordStrength,
		PasswordHashRounds:  config.PasswordHashRounds,
		PasswordSaltSize:    config.PasswordSaltSize,

		RegistrationTokenLifetime: timex.Duration{Duration: config.RegistrationTokenLifetime},
		ChangeEmailTokenLifetime:  timex.Duration{Duration: config.ChangeEmailTokenLifetime},
		PasswordTokenLifetime:     timex.Duration{Duration: config.PasswordTokenLifetime},
		AccessTokenLifetime:       timex.Duration{Duration: config.AccessTokenLifetime},
		RefreshTokenLifetime:      timex.Duration{Duration: config.RefreshTokenLifetime},

		MaxActiveNewcomersWithSameEmail:  config.MaxActiveNewcomersWithSameEmail,
		MaxActiveChangeSameEmailRequests: config.MaxActiveChangeSameEmailRequests,
		MaxActiveUserPasswordTokens:      config.MaxActiveUserPasswordTokens,

		TransactionRetries:             config.TransactionRetries,
		TransactionRetryIntervalFirst:  timex.Duration{Duration: config.TransactionRetryIntervalFirst},
		TransactionRetryIntervalFactor: config.TransactionRetryIntervalFactor,

		MailDomain:                 config.MailDomain,
		MailgunAPIKey:              config.MailgunAPIKey,
		MailFrom:                   config.MailFrom,
		RegisterVerifyLinkTemplate: config.RegisterVerifyLinkTemplate,
		ChangeEmailLinkTemplate:    config.ChangeEmailLinkTemplate,
		ResetPasswordLinkTemplate:  config.ResetPasswordLinkTemplate,
		MailQueueSize:              config.MailQueueSize,
		MailWorkers:                config.MailWorkers,
	}
}

func (c *JsonConfig) apply(config *Config) {
	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN

	config.MinPasswordStrength = c.MinPasswordStrength
	config.PasswordHashRounds = c.PasswordHashRounds
	config.PasswordSaltSize = c.PasswordSaltSize

	config.RegistrationTokenLifetime = time.Duration(c.RegistrationTokenLifetime.Duration)
	config.ChangeEmailTokenLifetime = time.Duration(c.ChangeEmailTokenLifetime.Duration)
	config.PasswordTokenLifetime = time.Duration(c.PasswordTokenLifetime.Duration)
	config.AccessTokenLifetime = time.Duration(c.AccessTokenLifetime.Duration)
	config.RefreshTokenLifetime = time.Duration(c.RefreshTokenLifetime.Duration)

	config.MaxActiveNewcomersWithSameEmail = c.MaxActiveNewcomersWithSameEmail
	config.MaxActiveChangeSameEmailRequests = c.MaxActiveChangeSameEmailRequests
	config.MaxActiveUserPasswordTokens = c.MaxActiveUserPasswordTokens

	config.TransactionRetries = c.TransactionRetries
	config.TransactionRetryIntervalFirst = time.Duration(c.TransactionRetryIntervalFirst.Duration)
	config.TransactionRetryIntervalFactor = c.TransactionRetryIntervalFactor

	config.MailDomain = c.MailDomain
	config.MailgunAPIKey = c.MailgunAPIKey
	config.MailFrom = c.MailFrom
	config.RegisterVerifyLinkTemplate = c.RegisterVerifyLinkTemplate
	config.ChangeEmailLinkTemplate = c.ChangeEmailLinkTemplate
	config.ResetPasswordLinkTemplate = c.ResetPasswordLinkTemplate
	config.MailQueueSize = c.MailQueueSize
	config.MailWorkers = c.MailWorkers
}
