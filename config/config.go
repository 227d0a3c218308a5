package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/billing-engine/activity"
	"github.com/warp/billing-engine/billing"
)

// Config models billing.yml.
type Config struct {
	Server struct {
		Port        int      `yaml:"port"`
		DB          string   `yaml:"db"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Time struct {
		ZoneOffsetHours int    `yaml:"zone_offset_hours"`
		LunchStart      string `yaml:"lunch_start"`
		LunchEnd        string `yaml:"lunch_end"`
	} `yaml:"time"`
	Classifier struct {
		InspectionMarkers []string          `yaml:"inspection_markers"`
		Machines          []MachineEntry    `yaml:"machines"`
		LaborLabels       map[string]string `yaml:"labor_labels"`
	} `yaml:"classifier"`
	Rates struct {
		DefaultCost string `yaml:"default_cost"`
		DefaultBill string `yaml:"default_bill"`
	} `yaml:"rates"`
	Expenses struct {
		Markup           string `yaml:"markup"`
		StrictValidation bool   `yaml:"strict_validation"`
	} `yaml:"expenses"`
	Status struct {
		StrictTransitions bool `yaml:"strict_transitions"`
		Lists             struct {
			Delivered   string `yaml:"delivered"`
			Aggregating string `yaml:"aggregating"`
			Completed   string `yaml:"completed"`
			Archived    string `yaml:"archived"`
		} `yaml:"lists"`
	} `yaml:"status"`
	Taskboard struct {
		TrelloKey   string `yaml:"trello_key"`
		TrelloToken string `yaml:"trello_token"`
	} `yaml:"taskboard"`
	Admins []string `yaml:"admins"`
}

type MachineEntry struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// FileName is the config file looked up in a directory.
const FileName = "billing.yml"

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys absent
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when path does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config.server.port must be between 1 and 65535")
	}
	if c.Time.ZoneOffsetHours < -12 || c.Time.ZoneOffsetHours > 14 {
		return fmt.Errorf("config.time.zone_offset_hours out of range: %d", c.Time.ZoneOffsetHours)
	}
	if _, err := c.lunch(); err != nil {
		return err
	}
	for i, m := range c.Classifier.Machines {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("config.classifier.machines[%d] has empty id", i)
		}
	}
	for code := range c.Classifier.LaborLabels {
		switch billing.ActivityCode(code) {
		case billing.ActivityNormal, billing.ActivityTrainee, billing.ActivityInspection:
		default:
			return fmt.Errorf("config.classifier.labor_labels has unknown activity %s", code)
		}
	}
	if _, err := c.defaultRate(); err != nil {
		return err
	}
	markup, err := parseDecimal("expenses.markup", c.Expenses.Markup)
	if err != nil {
		return err
	}
	if !markup.IsPositive() {
		return fmt.Errorf("config.expenses.markup must be positive")
	}
	return nil
}

func (c *Config) lunch() (billing.LunchWindow, error) {
	start, err := billing.ParseClock(c.Time.LunchStart)
	if err != nil {
		return billing.LunchWindow{}, fmt.Errorf("config.time.lunch_start: %w", err)
	}
	end, err := billing.ParseClock(c.Time.LunchEnd)
	if err != nil {
		return billing.LunchWindow{}, fmt.Errorf("config.time.lunch_end: %w", err)
	}
	if end <= start {
		return billing.LunchWindow{}, fmt.Errorf("config.time lunch window %s-%s is empty", start, end)
	}
	return billing.LunchWindow{Start: start, End: end}, nil
}

func (c *Config) defaultRate() (billing.Rate, error) {
	cost, err := parseDecimal("rates.default_cost", c.Rates.DefaultCost)
	if err != nil {
		return billing.Rate{}, err
	}
	bill, err := parseDecimal("rates.default_bill", c.Rates.DefaultBill)
	if err != nil {
		return billing.Rate{}, err
	}
	if cost.IsNegative() || bill.IsNegative() {
		return billing.Rate{}, fmt.Errorf("config.rates defaults must not be negative")
	}
	return billing.Rate{Cost: cost, Bill: bill}, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config.%s is not a number: %q", field, s)
	}
	return d, nil
}

// =============================================================================
// ENGINE WIRING
// =============================================================================

// Billing builds the engine config. Call Validate first.
func (c *Config) Billing() billing.Config {
	cfg := billing.DefaultConfig()
	cfg.Zone = time.FixedZone(fmt.Sprintf("UTC%+d", c.Time.ZoneOffsetHours), c.Time.ZoneOffsetHours*3600)
	if lunch, err := c.lunch(); err == nil {
		cfg.Lunch = lunch
	}
	if rate, err := c.defaultRate(); err == nil {
		cfg.DefaultRate = rate
	}
	if markup, err := parseDecimal("expenses.markup", c.Expenses.Markup); err == nil {
		cfg.Markup = markup
	}
	cfg.StrictExpenses = c.Expenses.StrictValidation
	cfg.StrictTransitions = c.Status.StrictTransitions
	cfg.Lists = billing.TaskLists{
		Delivered:   c.Status.Lists.Delivered,
		Aggregating: c.Status.Lists.Aggregating,
		Completed:   c.Status.Lists.Completed,
		Archived:    c.Status.Lists.Archived,
	}
	return cfg
}

// Activity builds the classifier options.
func (c *Config) Activity() activity.Options {
	opts := activity.Options{
		InspectionMarkers: c.Classifier.InspectionMarkers,
		LaborLabels:       make(map[billing.ActivityCode]string, len(c.Classifier.LaborLabels)),
	}
	for _, m := range c.Classifier.Machines {
		opts.Machines = append(opts.Machines, activity.Machine{ID: m.ID, Label: m.Label})
	}
	for code, label := range c.Classifier.LaborLabels {
		opts.LaborLabels[billing.ActivityCode(code)] = label
	}
	return opts
}

// TaskboardEnabled reports whether Trello credentials are configured.
func (c *Config) TaskboardEnabled() bool {
	return c.Taskboard.TrelloKey != "" && c.Taskboard.TrelloToken != ""
}

// IsAdmin reports whether a user id is listed under admins.
func (c *Config) IsAdmin(userID string) bool {
	for _, a := range c.Admins {
		if a == userID {
			return true
		}
	}
	return false
}

const defaultTemplate = `server:
  port: 8080
  db: ./data/billing.db
  cors_origins: ["*"]

time:
  zone_offset_hours: 9
  lunch_start: "12:00"
  lunch_end: "13:00"

classifier:
  inspection_markers: ["点検", "inspection"]
  machines:
    - id: nc-lathe
      label: NC lathe
    - id: crane
      label: Overhead crane
    - id: welder
      label: Welding machine
  labor_labels:
    NORMAL: Normal labor
    TRAINEE: Trainee labor
    INSPECTION: Inspection

rates:
  default_cost: "3000"
  default_bill: "5000"

expenses:
  markup: "1.2"
  strict_validation: false

status:
  strict_transitions: false
  lists:
    delivered: ""
    aggregating: ""
    completed: ""
    archived: ""

taskboard:
  trello_key: ""
  trello_token: ""

admins: []
`
