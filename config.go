package mbtrn

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	stgpsr "github.com/yuin/stagparser"
)

// Config is the populated configuration record threaded through every
// component boundary (spec.md §9's "Global state → explicit context").
// Every field carries an `opt:"name=...,parser=..."` struct tag; OptionTable
// builds the typed option table spec.md §9 calls for — "a single typed-
// option table mapping option name → (target field, parser variant)" —
// from those tags the same way the teacher's tiledb/filters struct tags
// drive `attitude.go`/`svp.go`/`schema.go`'s reflective array-schema
// construction.
type Config struct {
	Verbose               bool    `opt:"name=verbose,parser=bool"`
	Input                 string  `opt:"name=input,parser=string"`
	Format                int     `opt:"name=format,parser=int"`
	PlatformFile          string  `opt:"name=platform-file,parser=string"`
	PlatformTargetSensor  int     `opt:"name=platform-target-sensor,parser=int"`
	LogDirectory          string  `opt:"name=log-directory,parser=string"`
	Output                string  `opt:"name=output,parser=string"`
	Projection            int     `opt:"name=projection,parser=int"`
	SwathWidth            float64 `opt:"name=swath-width,parser=float"`
	Soundings             int     `opt:"name=soundings,parser=int"`
	MedianFilter          string  `opt:"name=median-filter,parser=string"`
	MBHeartbeatCount      int     `opt:"name=mbhbn,parser=int"`
	MBHeartbeatTimeout    float64 `opt:"name=mbhbt,parser=float"`
	TRNHeartbeatTimeout   float64 `opt:"name=trnhbt,parser=float"`
	TRNUHeartbeatTimeout  float64 `opt:"name=trnuhbt,parser=float"`
	DelayMillis           int64   `opt:"name=delay,parser=int64"`
	StatSec               float64 `opt:"name=statsec,parser=float"`
	StatFlags             string  `opt:"name=statflags,parser=string"`
	TRNEnable             bool    `opt:"name=trn-en,parser=bool"`
	TRNUTM                int     `opt:"name=trn-utm,parser=int"`
	TRNMap                string  `opt:"name=trn-map,parser=string"`
	TRNConfigFile         string  `opt:"name=trn-cfg,parser=string"`
	TRNParticles          string  `opt:"name=trn-par,parser=string"`
	TRNMID                string  `opt:"name=trn-mid,parser=string"`
	TRNMeasType           int     `opt:"name=trn-mtype,parser=int"`
	TRNFilterType         int     `opt:"name=trn-ftype,parser=int"`
	TRNMaxNorthCov        float64 `opt:"name=trn-ncov,parser=float"`
	TRNMaxNorthErr        float64 `opt:"name=trn-nerr,parser=float"`
	TRNMaxEastCov         float64 `opt:"name=trn-ecov,parser=float"`
	TRNMaxEastErr         float64 `opt:"name=trn-eerr,parser=float"`
	MBOut                 string  `opt:"name=mb-out,parser=string"`
	TRNOut                string  `opt:"name=trn-out,parser=string"`
	TRNDecN               uint    `opt:"name=trn-decn,parser=uint"`
	TRNDecS               float64 `opt:"name=trn-decs,parser=float"`
	TRNIgnoreGain         bool    `opt:"name=trn-nombgain,parser=bool"`
	ConfigFile            string  `opt:"name=config,parser=string"`
}

// Defaults returns the compiled-in defaults, the lowest rung of spec.md
// §6.4's precedence ladder (compiled defaults ≺ config file ≺ command
// line).
func Defaults() Config {
	return Config{
		Format:               0,
		SwathWidth:           150 * 3.141592653589793 / 180, // radians
		Soundings:            101,
		MedianFilter:         "0.1/3/3",
		MBHeartbeatCount:     50,
		MBHeartbeatTimeout:   5,
		TRNHeartbeatTimeout:  5,
		TRNUHeartbeatTimeout: 5,
		StatSec:              30,
		TRNMeasType:          1,
		TRNFilterType:        1,
		TRNMaxNorthCov:       5,
		TRNMaxNorthErr:       5,
		TRNMaxEastCov:        5,
		TRNMaxEastErr:        5,
		MBOut:                "mb1",
		TRNOut:               "",
	}
}

// Option is one entry of the typed option table: the struct field it
// targets and the parser variant used to convert a raw string value.
type Option struct {
	Field  string
	Parser string
}

// OptionTable builds the name → Option mapping from cfg's `opt` struct
// tags via reflection, exactly once per Config instance.
func OptionTable(cfg *Config) (map[string]Option, error) {
	defs, err := stgpsr.ParseStruct(cfg, "opt")
	if err != nil {
		return nil, fmt.Errorf("parsing config option tags: %w", err)
	}

	table := make(map[string]Option, len(defs))
	for field, fieldDefs := range defs {
		for _, d := range fieldDefs {
			name, ok := d.Attribute("name")
			if !ok {
				continue
			}
			parser, _ := d.Attribute("parser")
			table[name] = Option{Field: field, Parser: parser}
		}
	}
	return table, nil
}

// SetOption applies one raw string value to cfg via the option table,
// parsing it according to the option's declared parser variant.
func SetOption(cfg *Config, table map[string]Option, name, value string) error {
	opt, ok := table[name]
	if !ok {
		return NewError(ConfigInvalid, "option", fmt.Errorf("unrecognized option %q", name))
	}

	field := reflect.ValueOf(cfg).Elem().FieldByName(opt.Field)
	if !field.IsValid() {
		return NewError(ConfigInvalid, "option", fmt.Errorf("option %q has no backing field %q", name, opt.Field))
	}

	switch opt.Parser {
	case "bool":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return NewError(ConfigInvalid, name, err)
		}
		field.SetBool(v)
	case "int":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return NewError(ConfigInvalid, name, err)
		}
		field.SetInt(v)
	case "int64":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return NewError(ConfigInvalid, name, err)
		}
		field.SetInt(v)
	case "uint":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return NewError(ConfigInvalid, name, err)
		}
		field.SetUint(v)
	case "float":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return NewError(ConfigInvalid, name, err)
		}
		field.SetFloat(v)
	case "string":
		field.SetString(value)
	default:
		return NewError(ConfigInvalid, name, fmt.Errorf("unknown parser variant %q", opt.Parser))
	}
	return nil
}

// Load applies spec.md §6.4's precedence ladder: start from the compiled
// defaults, layer the config-file options, then the command-line
// options. Every value is passed through Resolve so mnemonic tokens
// (SESSION, RESON_HOST, ...) are substituted before being consumed.
func Load(fromFile, fromCLI map[string]string, resolver *Resolver) (*Config, error) {
	cfg := Defaults()
	table, err := OptionTable(&cfg)
	if err != nil {
		return nil, err
	}

	apply := func(opts map[string]string) error {
		for name, raw := range opts {
			value := raw
			if resolver != nil {
				value = resolver.Resolve(raw)
			}
			if err := SetOption(&cfg, table, name, value); err != nil {
				return err
			}
		}
		return nil
	}

	if err := apply(fromFile); err != nil {
		return nil, err
	}
	if err := apply(fromCLI); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MedianFilterParams is the parsed form of the `median-filter=τ/nx/ny`
// option.
type MedianFilterParams struct {
	Threshold   float64
	NAcross     int
	NAlong      int
}

// ParseMedianFilter parses the "τ/nx/ny" aggregate option value.
func ParseMedianFilter(spec string) (MedianFilterParams, error) {
	parts := strings.Split(spec, "/")
	if len(parts) != 3 {
		return MedianFilterParams{}, NewError(ConfigInvalid, "median-filter", fmt.Errorf("expected tau/nx/ny, got %q", spec))
	}
	tau, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return MedianFilterParams{}, NewError(ConfigInvalid, "median-filter", err)
	}
	nx, err := strconv.Atoi(parts[1])
	if err != nil {
		return MedianFilterParams{}, NewError(ConfigInvalid, "median-filter", err)
	}
	ny, err := strconv.Atoi(parts[2])
	if err != nil {
		return MedianFilterParams{}, NewError(ConfigInvalid, "median-filter", err)
	}
	if tau <= 0 || tau > 1 {
		return MedianFilterParams{}, NewError(ConfigInvalid, "median-filter", fmt.Errorf("tau %v out of range (0,1]", tau))
	}
	return MedianFilterParams{Threshold: tau, NAcross: nx, NAlong: ny}, nil
}

// OutputTarget is one parsed token of an `mb-out`/`trn-out` selector:
// a named output, whether it's enabled, and the optional host:port it
// carries.
type OutputTarget struct {
	Name    string
	Enabled bool
	Host    string
	Port    int
}

// ParseOutputSelector parses a comma-separated `mb-out`/`trn-out` value
// ("mb1,trnu:localhost:8000") into its tokens.
func ParseOutputSelector(spec string) ([]OutputTarget, error) {
	if spec == "" {
		return nil, nil
	}
	tokens := strings.Split(spec, ",")
	out := make([]OutputTarget, 0, len(tokens))
	for _, tok := range tokens {
		fields := strings.Split(tok, ":")
		name := fields[0]
		enabled := true
		if strings.HasPrefix(name, "-") {
			enabled = false
			name = strings.TrimPrefix(name, "-")
		}
		target := OutputTarget{Name: name, Enabled: enabled}
		if len(fields) == 3 {
			target.Host = fields[1]
			port, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, NewError(ConfigInvalid, "output-selector", err)
			}
			target.Port = port
		} else if len(fields) != 1 {
			return nil, NewError(ConfigInvalid, "output-selector", fmt.Errorf("malformed output token %q", tok))
		}
		out = append(out, target)
	}
	return out, nil
}

// Validate enforces spec.md §7's CONFIG-INVALID checks: these must run,
// and fail the process before any socket is opened.
func (c *Config) Validate() error {
	if c.SwathWidth < 0 {
		return NewError(ConfigInvalid, "swath-width", fmt.Errorf("must be >= 0, got %v", c.SwathWidth))
	}
	if c.Soundings <= 0 {
		return NewError(ConfigInvalid, "soundings", fmt.Errorf("must be > 0, got %v", c.Soundings))
	}
	if _, err := ParseMedianFilter(c.MedianFilter); err != nil {
		return err
	}
	if _, err := ParseOutputSelector(c.MBOut); err != nil {
		return err
	}
	if _, err := ParseOutputSelector(c.TRNOut); err != nil {
		return err
	}
	if c.TRNDecS < 0 {
		return NewError(ConfigInvalid, "trn-decs", fmt.Errorf("must be >= 0, got %v", c.TRNDecS))
	}
	return nil
}
