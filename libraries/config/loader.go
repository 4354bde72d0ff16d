package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

func CheckVersion(version string) {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" {
			fmt.Println(version)
			os.Exit(0)
		}
	}
}

type fieldInfo struct {
	field        reflect.Value
	name         string
	aliases      []string
	help         string
	fieldType    reflect.Type
	isRequired   bool
	defaultValue string
}

var durationType = reflect.TypeOf(time.Duration(0))

// Load fills cfg from struct-tag defaults, then an INI file, then the
// environment, then command-line flags. Later sources win.
func Load(cfg interface{}, args []string) error {
	return LoadWithOptions(cfg, args, nil)
}

type LoadOptions struct {
	ConfigFlag     string
	DefaultConfig  string
	EnvPrefix      string
	StrictINI      bool
	SkipAutoConfig bool
}

func LoadWithOptions(cfg interface{}, args []string, opts *LoadOptions) error {
	if opts == nil {
		opts = &LoadOptions{}
	}
	if opts.ConfigFlag == "" {
		opts.ConfigFlag = "config"
	}
	if opts.DefaultConfig == "" {
		opts.DefaultConfig = "./config.ini"
	}

	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("cfg must be a pointer to a struct")
	}
	v = v.Elem()

	fields := parseStructTags(v, v.Type())

	for _, f := range fields {
		if f.defaultValue == "" {
			continue
		}
		if err := setFieldValue(f.field, f.fieldType, f.defaultValue); err != nil {
			return fmt.Errorf("failed to apply defaults: invalid default for %s: %w", f.name, err)
		}
	}

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	var configPath string
	fs.StringVar(&configPath, opts.ConfigFlag, "", "Path to config file")

	flagValues := make(map[string]*string, len(fields))
	for _, f := range fields {
		flagValues[f.name] = registerFlag(fs, f)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return err
	}

	if configPath == "" && !opts.SkipAutoConfig {
		if _, err := os.Stat(opts.DefaultConfig); err == nil {
			configPath = opts.DefaultConfig
		}
	}
	if configPath != "" {
		if err := loadINI(configPath, fields, opts.StrictINI); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if opts.EnvPrefix != "" {
		if err := applyEnv(fields, opts.EnvPrefix); err != nil {
			return err
		}
	}

	var flagErr error
	fs.Visit(func(fl *flag.Flag) {
		if flagErr != nil {
			return
		}
		for _, f := range fields {
			if f.name != fl.Name {
				continue
			}
			if err := setFieldValue(f.field, f.fieldType, *flagValues[f.name]); err != nil {
				flagErr = fmt.Errorf("invalid value for -%s: %w", f.name, err)
			}
		}
	})
	if flagErr != nil {
		return flagErr
	}

	return validateRequired(fields)
}

func parseStructTags(v reflect.Value, t reflect.Type) []fieldInfo {
	var fields []fieldInfo

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		name := sf.Tag.Get("name")
		if name == "" {
			name = toKebabCase(sf.Name)
		}

		var aliases []string
		if aliasTag := sf.Tag.Get("alias"); aliasTag != "" {
			for _, a := range strings.Split(aliasTag, ",") {
				aliases = append(aliases, strings.TrimSpace(a))
			}
		}

		fields = append(fields, fieldInfo{
			field:        fv,
			name:         name,
			aliases:      aliases,
			help:         sf.Tag.Get("help"),
			fieldType:    sf.Type,
			isRequired:   sf.Tag.Get("required") == "true",
			defaultValue: sf.Tag.Get("default"),
		})
	}

	return fields
}

// Flags are collected as raw strings and converted with the same rules as
// INI values; booleans stay real bool flags so "-read-only" works bare.
type boolFlag struct{ value *string }

func (b boolFlag) String() string {
	if b.value == nil {
		return ""
	}
	return *b.value
}

func (b boolFlag) Set(s string) error {
	*b.value = s
	return nil
}

func (b boolFlag) IsBoolFlag() bool { return true }

func registerFlag(fs *flag.FlagSet, f fieldInfo) *string {
	ptr := new(string)
	help := f.help
	switch {
	case f.fieldType.Kind() == reflect.Bool:
		fs.Var(boolFlag{ptr}, f.name, help)
		return ptr
	case f.fieldType.Kind() == reflect.Slice && !strings.Contains(strings.ToLower(help), "comma"):
		help += " (comma-separated)"
	}
	fs.StringVar(ptr, f.name, "", help)
	return ptr
}

func loadINI(path string, fields []fieldInfo, strict bool) error {
	byKey := make(map[string]*fieldInfo)
	for i := range fields {
		f := &fields[i]
		byKey[f.name] = f
		for _, alias := range f.aliases {
			byKey[alias] = f
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		f, ok := byKey[key]
		if !ok {
			if strict {
				return fmt.Errorf("unknown configuration key at line %d: %s", lineNum, key)
			}
			continue
		}
		if err := setFieldValue(f.field, f.fieldType, value); err != nil {
			return fmt.Errorf("error parsing '%s' at line %d: %w", key, lineNum, err)
		}
	}

	return scanner.Err()
}

// applyEnv maps "chain-api-url" to PREFIX_CHAIN_API_URL.
func applyEnv(fields []fieldInfo, prefix string) error {
	for _, f := range fields {
		key := prefix + "_" + strings.ToUpper(strings.ReplaceAll(f.name, "-", "_"))
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setFieldValue(f.field, f.fieldType, value); err != nil {
			return fmt.Errorf("error parsing %s: %w", key, err)
		}
	}
	return nil
}

func setFieldValue(fv reflect.Value, ft reflect.Type, value string) error {
	switch ft.Kind() {
	case reflect.String:
		fv.SetString(value)
	case reflect.Int, reflect.Int64:
		if ft == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			fv.SetInt(int64(d))
			return nil
		}
		v, err := strconv.ParseInt(value, 10, ft.Bits())
		if err != nil {
			return err
		}
		fv.SetInt(v)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(value, 10, ft.Bits())
		if err != nil {
			return err
		}
		fv.SetUint(v)
	case reflect.Float64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(v)
	case reflect.Bool:
		fv.SetBool(ParseBool(value))
	case reflect.Slice:
		if ft.Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", ft)
		}
		var slice []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				slice = append(slice, trimmed)
			}
		}
		fv.Set(reflect.ValueOf(slice))
	default:
		return fmt.Errorf("unsupported type: %v", ft.Kind())
	}
	return nil
}

func ParseBool(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return value == "true" || value == "yes" || value == "1" || value == "on"
}

func toKebabCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				result.WriteByte('-')
			}
			r += 32
		}
		result.WriteRune(r)
	}
	return result.String()
}

func validateRequired(fields []fieldInfo) error {
	var missing []string
	for _, f := range fields {
		if f.isRequired && f.field.IsZero() {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}
