package commission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mtscoaima/aima-sub007/internal/monitoring"
	"github.com/mtscoaima/aima-sub007/internal/schema"
)

const settingsKey = "commission"

// ErrInvalidSettings wraps any settings document that fails validation.
var ErrInvalidSettings = errors.New("invalid commission settings")

// Settings are the rate parameters read once per distribution.
type Settings struct {
	FirstLevelRatePercent decimal.Decimal `json:"firstLevelRatePercent"`
	NthLevelDenominator   int64           `json:"nthLevelDenominator"`
}

// DefaultSettings is used whenever the stored row is missing or unusable.
func DefaultSettings() Settings {
	return Settings{
		FirstLevelRatePercent: decimal.NewFromInt(DefaultFirstLevelRatePercent),
		NthLevelDenominator:   DefaultNthLevelDenominator,
	}
}

// MarshalJSON writes the rate as a JSON number, matching the stored document.
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FirstLevelRatePercent json.Number `json:"firstLevelRatePercent"`
		NthLevelDenominator   int64       `json:"nthLevelDenominator"`
	}{json.Number(s.FirstLevelRatePercent.String()), s.NthLevelDenominator})
}

// Validate checks the document shape (json schema) and the calculator's domain.
func (s Settings) Validate(v *schema.Validator) error {
	if err := v.Validate(schema.CommissionSettings, s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.FirstLevelRatePercent.IsNegative() || s.FirstLevelRatePercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, ErrInvalidRate)
	}
	if s.NthLevelDenominator < 2 {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, ErrInvalidDenominator)
	}
	return nil
}

// SettingsRepo reads and writes the commission row of system_settings.
type SettingsRepo struct {
	pool      *pgxpool.Pool
	validator *schema.Validator
}

// NewSettingsRepo returns a SettingsRepo over pool. Save validates with validator.
func NewSettingsRepo(pool *pgxpool.Pool, validator *schema.Validator) *SettingsRepo {
	return &SettingsRepo{pool: pool, validator: validator}
}

// Get returns the raw stored document, or (nil, nil) when the row does not exist.
func (r *SettingsRepo) Get(ctx context.Context) ([]byte, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM system_settings WHERE key = $1`, settingsKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Save validates s and upserts it.
func (r *SettingsRepo) Save(ctx context.Context, s Settings) error {
	if err := s.Validate(r.validator); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO system_settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, settingsKey, raw)
	return err
}

// SettingsSource yields the raw stored settings document.
type SettingsSource interface {
	Get(ctx context.Context) ([]byte, error)
}

// Loader turns the stored document into Settings and never fails: commission is
// a side channel of the business action that triggered it.
type Loader struct {
	source    SettingsSource
	validator *schema.Validator
	log       *slog.Logger
}

// NewLoader returns a Loader reading from source. log defaults to slog.Default().
func NewLoader(source SettingsSource, validator *schema.Validator, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{source: source, validator: validator, log: log}
}

// Load returns the stored settings, or the defaults when they cannot be read.
func (l *Loader) Load(ctx context.Context) Settings {
	s, err := l.load(ctx)
	if err != nil {
		l.log.Warn("commission settings unavailable, using defaults", "error", err)
		monitoring.CommissionSettingsFallback.Inc()
		return DefaultSettings()
	}
	return s
}

func (l *Loader) load(ctx context.Context) (Settings, error) {
	raw, err := l.source.Get(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if raw == nil {
		return Settings{}, errors.New("settings row missing")
	}
	return Decode(raw, l.validator)
}

// Decode validates a stored settings document and parses it. Every failure
// wraps ErrInvalidSettings.
func Decode(raw []byte, v *schema.Validator) (Settings, error) {
	if err := v.ValidateJSON(schema.CommissionSettings, raw); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := s.Validate(v); err != nil {
		return Settings{}, err
	}
	return s, nil
}
