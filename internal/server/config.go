package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/pokertable/internal/auth"
	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/ledger"
	"github.com/lox/pokertable/internal/table"
)

const (
	defaultAddress       = "localhost"
	defaultPort          = 8080
	defaultLogLevel      = "info"
	defaultBalance       = 1000
	defaultMaxPlayers    = 6
	defaultNextHandDelay = "2s"
	defaultLedgerPath    = "data"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server  *ServerSettings `hcl:"server,block"`
	Ledger  *LedgerSettings `hcl:"ledger,block"`
	Tables  []TableConfig   `hcl:"table,block"`
	Players []PlayerConfig  `hcl:"player,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address        string `hcl:"address,optional"`
	Port           int    `hcl:"port,optional"`
	LogLevel       string `hcl:"log_level,optional"`
	HandLogDir     string `hcl:"hand_log_dir,optional"`
	DefaultBalance int    `hcl:"default_balance,optional"` // for identities without a balance
	AuthURL        string `hcl:"auth_url,optional"`
	AuthSecret     string `hcl:"auth_secret,optional"`
}

// LedgerSettings selects where balances are kept.
type LedgerSettings struct {
	Backend string `hcl:"backend,optional"`
	Path    string `hcl:"path,optional"`
}

// TableConfig defines a poker table configuration
type TableConfig struct {
	Name          string `hcl:"name,label"`
	SmallBlind    int    `hcl:"small_blind"`
	BigBlind      int    `hcl:"big_blind"`
	MaxPlayers    int    `hcl:"max_players,optional"`
	NextHandDelay string `hcl:"next_hand_delay,optional"`
	ActionTimeout string `hcl:"action_timeout,optional"`
}

// PlayerConfig is a player allowed to connect with a fixed token.
type PlayerConfig struct {
	ID      string `hcl:"id,label"`
	Name    string `hcl:"name,optional"`
	Token   string `hcl:"token"`
	Balance int    `hcl:"balance,optional"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	c := &ServerConfig{
		Tables: []TableConfig{
			{
				Name:       "main",
				SmallBlind: 5,
				BigBlind:   10,
			},
		},
	}
	c.applyDefaults()
	return c
}

// LoadServerConfig loads server configuration from HCL file
func LoadServerConfig(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}
	if c.Server.DefaultBalance == 0 {
		c.Server.DefaultBalance = defaultBalance
	}

	if c.Ledger == nil {
		c.Ledger = &LedgerSettings{}
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = ledger.BackendMemory
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = defaultLedgerPath
	}

	for i := range c.Tables {
		if c.Tables[i].MaxPlayers == 0 {
			c.Tables[i].MaxPlayers = defaultMaxPlayers
		}
		if c.Tables[i].NextHandDelay == "" {
			c.Tables[i].NextHandDelay = defaultNextHandDelay
		}
	}
	for i := range c.Players {
		if c.Players[i].Name == "" {
			c.Players[i].Name = c.Players[i].ID
		}
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.DefaultBalance < 0 {
		return fmt.Errorf("default balance must not be negative")
	}

	switch c.Ledger.Backend {
	case ledger.BackendMemory, ledger.BackendLevelDB:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}

	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table must be configured")
	}

	names := make(map[string]bool, len(c.Tables))
	for _, tc := range c.Tables {
		if names[tc.Name] {
			return fmt.Errorf("table %s: defined twice", tc.Name)
		}
		names[tc.Name] = true
		if _, err := tc.TableConfig(); err != nil {
			return err
		}
	}

	tokens := make(map[string]bool, len(c.Players))
	for _, p := range c.Players {
		if p.Token == "" {
			return fmt.Errorf("player %s: token is required", p.ID)
		}
		if tokens[p.Token] {
			return fmt.Errorf("player %s: token already used by another player", p.ID)
		}
		tokens[p.Token] = true
		if p.Balance < 0 {
			return fmt.Errorf("player %s: balance must not be negative", p.ID)
		}
	}

	return nil
}

// TableConfig converts the HCL block into a table configuration.
func (tc TableConfig) TableConfig() (table.Config, error) {
	blinds := game.Blinds{Small: tc.SmallBlind, Big: tc.BigBlind}
	if blinds.Small <= 0 || blinds.Big < blinds.Small {
		return table.Config{}, fmt.Errorf("table %s: %w: %d/%d", tc.Name, game.ErrInvalidBlinds, blinds.Small, blinds.Big)
	}
	if tc.MaxPlayers < game.MinSeats || tc.MaxPlayers > game.MaxSeats {
		return table.Config{}, fmt.Errorf("table %s: max players must be between %d and %d",
			tc.Name, game.MinSeats, game.MaxSeats)
	}

	delay, err := parseDuration(tc.NextHandDelay)
	if err != nil {
		return table.Config{}, fmt.Errorf("table %s: next_hand_delay: %w", tc.Name, err)
	}
	timeout, err := parseDuration(tc.ActionTimeout)
	if err != nil {
		return table.Config{}, fmt.Errorf("table %s: action_timeout: %w", tc.Name, err)
	}

	return table.Config{
		Name:          tc.Name,
		Blinds:        blinds,
		MaxPlayers:    tc.MaxPlayers,
		NextHandDelay: delay,
		ActionTimeout: timeout,
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// GetTableByName returns a table configuration by name
func (c *ServerConfig) GetTableByName(name string) *TableConfig {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i]
		}
	}
	return nil
}

// Validator builds the token validator: an external service when auth_url is
// set, the configured players when there are any, and otherwise one that
// trusts every token.
func (c *ServerConfig) Validator() auth.Validator {
	if c.Server.AuthURL != "" {
		return auth.NewHTTPValidator(c.Server.AuthURL, c.Server.AuthSecret)
	}
	if len(c.Players) == 0 {
		return auth.NewNoopValidator()
	}
	tokens := make(map[string]auth.Identity, len(c.Players))
	for _, p := range c.Players {
		tokens[p.Token] = auth.Identity{PlayerID: p.ID, Name: p.Name, Balance: p.Balance}
	}
	return auth.NewStaticValidator(tokens)
}
