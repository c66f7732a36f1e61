/*
Copyright 2025 LeadLoop Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"LEADLOOP_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"LEADLOOP_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"LEADLOOP_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"LEADLOOP_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"LEADLOOP_REDIS_DNS"`
}

// OracleConfig points at the external decision service.
type OracleConfig struct {
	Url           string `json:"url" envconfig:"LEADLOOP_ORACLE_URL"`
	TimeoutSec    int    `json:"timeout_sec" envconfig:"LEADLOOP_ORACLE_TIMEOUT_SEC"`
	Authorization string `json:"authorization" envconfig:"LEADLOOP_ORACLE_AUTHORIZATION"`
}

// DispatcherConfig points at the external message-delivery transport.
type DispatcherConfig struct {
	Url        string `json:"url" envconfig:"LEADLOOP_DISPATCHER_URL"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"LEADLOOP_DISPATCHER_TIMEOUT_SEC"`
}

// EnrichmentConfig drives the fire-and-forget document-sync trigger.
type EnrichmentConfig struct {
	Queue string `json:"queue" envconfig:"LEADLOOP_ENRICHMENT_QUEUE"`
	Url   string `json:"url" envconfig:"LEADLOOP_ENRICHMENT_URL"`
}

// SchedulerConfig holds the knobs for the three polling loops.
type SchedulerConfig struct {
	ReplyIntervalSec      int `json:"reply_interval_sec" envconfig:"LEADLOOP_REPLY_INTERVAL_SEC"`
	NudgeIntervalSec      int `json:"nudge_interval_sec" envconfig:"LEADLOOP_NUDGE_INTERVAL_SEC"`
	DripIntervalSec       int `json:"drip_interval_sec" envconfig:"LEADLOOP_DRIP_INTERVAL_SEC"`
	RecencyWindowHours    int `json:"recency_window_hours" envconfig:"LEADLOOP_RECENCY_WINDOW_HOURS"`
	QuietPeriodSec        int `json:"quiet_period_sec" envconfig:"LEADLOOP_QUIET_PERIOD_SEC"`
	HumanGraceMinutes     int `json:"human_grace_minutes" envconfig:"LEADLOOP_HUMAN_GRACE_MINUTES"`
	MinReplyDelaySec      int `json:"min_reply_delay_sec" envconfig:"LEADLOOP_MIN_REPLY_DELAY_SEC"`
	MaxReplyDelaySec      int `json:"max_reply_delay_sec" envconfig:"LEADLOOP_MAX_REPLY_DELAY_SEC"`
	PacingDelaySec        int `json:"pacing_delay_sec" envconfig:"LEADLOOP_PACING_DELAY_SEC"`
	NudgeCap              int `json:"nudge_cap" envconfig:"LEADLOOP_NUDGE_CAP"`
	NudgeLookbackDays     int `json:"nudge_lookback_days" envconfig:"LEADLOOP_NUDGE_LOOKBACK_DAYS"`
	DripCap               int `json:"drip_cap" envconfig:"LEADLOOP_DRIP_CAP"`
	DripCooldownMinutes   int `json:"drip_cooldown_minutes" envconfig:"LEADLOOP_DRIP_COOLDOWN_MINUTES"`
	StallBreakupThreshold int `json:"stall_breakup_threshold" envconfig:"LEADLOOP_STALL_BREAKUP_THRESHOLD"`
	DedupWindowMinutes    int `json:"dedup_window_minutes" envconfig:"LEADLOOP_DEDUP_WINDOW_MINUTES"`
	DedupDriftPercent     int `json:"dedup_drift_percent" envconfig:"LEADLOOP_DEDUP_DRIFT_PERCENT"`
	SkipLogMinutes        int `json:"skip_log_minutes" envconfig:"LEADLOOP_SKIP_LOG_MINUTES"`
	LoopLockTTLSec        int `json:"loop_lock_ttl_sec" envconfig:"LEADLOOP_LOOP_LOCK_TTL_SEC"`
	StaleLockMinutes      int `json:"stale_lock_minutes" envconfig:"LEADLOOP_STALE_LOCK_MINUTES"`
}

// BusinessHoursConfig gates cold outreach to a local-time window.
type BusinessHoursConfig struct {
	Timezone   string `json:"timezone" envconfig:"LEADLOOP_BUSINESS_HOURS_TIMEZONE"`
	StartHour  int    `json:"start_hour" envconfig:"LEADLOOP_BUSINESS_HOURS_START"`
	EndHour    int    `json:"end_hour" envconfig:"LEADLOOP_BUSINESS_HOURS_END"`
	IncludeSat bool   `json:"include_saturday" envconfig:"LEADLOOP_BUSINESS_HOURS_SATURDAY"`
	IncludeSun bool   `json:"include_sunday" envconfig:"LEADLOOP_BUSINESS_HOURS_SUNDAY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"LEADLOOP_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"LEADLOOP_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"LEADLOOP_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName   string              `json:"project_name" envconfig:"LEADLOOP_PROJECT_NAME"`
	Server        ServerConfig        `json:"server"`
	DataSource    DataSourceConfig    `json:"data_source"`
	Redis         RedisConfig         `json:"redis"`
	Oracle        OracleConfig        `json:"oracle"`
	Dispatcher    DispatcherConfig    `json:"dispatcher"`
	Enrichment    EnrichmentConfig    `json:"enrichment"`
	Scheduler     SchedulerConfig     `json:"scheduler"`
	BusinessHours BusinessHoursConfig `json:"business_hours"`
	Notification  Notification        `json:"notification"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("leadloop", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called leadloop.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "LeadLoop Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Oracle.TimeoutSec <= 0 {
		cnf.Oracle.TimeoutSec = 30
	}
	if cnf.Dispatcher.TimeoutSec <= 0 {
		cnf.Dispatcher.TimeoutSec = 15
	}
	if cnf.Enrichment.Queue == "" {
		cnf.Enrichment.Queue = "new:enrichment"
	}

	cnf.Scheduler.applyDefaults()
	cnf.BusinessHours.applyDefaults()

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (s *SchedulerConfig) applyDefaults() {
	if s.ReplyIntervalSec <= 0 {
		s.ReplyIntervalSec = 60
	}
	if s.NudgeIntervalSec <= 0 {
		s.NudgeIntervalSec = 300
	}
	if s.DripIntervalSec <= 0 {
		s.DripIntervalSec = 300
	}
	if s.RecencyWindowHours <= 0 {
		s.RecencyWindowHours = 72
	}
	if s.QuietPeriodSec <= 0 {
		s.QuietPeriodSec = 120
	}
	if s.HumanGraceMinutes <= 0 {
		s.HumanGraceMinutes = 15
	}
	if s.MinReplyDelaySec <= 0 {
		s.MinReplyDelaySec = 30
	}
	if s.MaxReplyDelaySec <= s.MinReplyDelaySec {
		s.MaxReplyDelaySec = s.MinReplyDelaySec + 60
	}
	if s.PacingDelaySec <= 0 {
		s.PacingDelaySec = 5
	}
	if s.NudgeCap <= 0 {
		s.NudgeCap = 6
	}
	if s.NudgeLookbackDays <= 0 {
		s.NudgeLookbackDays = 14
	}
	if s.DripCap <= 0 {
		s.DripCap = 4
	}
	if s.DripCooldownMinutes <= 0 {
		s.DripCooldownMinutes = 1
	}
	if s.StallBreakupThreshold <= 0 {
		s.StallBreakupThreshold = 3
	}
	if s.DedupWindowMinutes <= 0 {
		s.DedupWindowMinutes = 30
	}
	if s.DedupDriftPercent <= 0 {
		s.DedupDriftPercent = 20
	}
	if s.SkipLogMinutes <= 0 {
		s.SkipLogMinutes = 30
	}
	if s.LoopLockTTLSec <= 0 {
		s.LoopLockTTLSec = 300
	}
	if s.StaleLockMinutes <= 0 {
		s.StaleLockMinutes = 30
	}
}

func (b *BusinessHoursConfig) applyDefaults() {
	if b.Timezone == "" {
		b.Timezone = "America/New_York"
	}
	if b.StartHour <= 0 {
		b.StartHour = 9
	}
	if b.EndHour <= 0 || b.EndHour <= b.StartHour {
		b.EndHour = 18
	}
}

// ReplyDelay returns the randomized pre-dispatch delay bounds.
func (s *SchedulerConfig) ReplyDelay() (time.Duration, time.Duration) {
	return time.Duration(s.MinReplyDelaySec) * time.Second, time.Duration(s.MaxReplyDelaySec) * time.Second
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Scheduler.applyDefaults()
	mockConfig.BusinessHours.applyDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
