package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel  string
	LogFormat string
	LogFile   string
	Debug     string
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	fs.StringVar(&f.Debug, "debug", "",
		"Comma-separated debug categories: state, queue, events, reconnect, all")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	for _, cat := range f.categories() {
		parsed, err := ParseCategory(cat)
		if err != nil {
			return nil, err
		}
		cfg.EnableCategory(parsed)
		cfg.Level = LevelDebug
	}

	return cfg, nil
}

// categories splits the -debug flag value into its non-empty entries.
func (f *Flags) categories() []string {
	if f.Debug == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(f.Debug, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./bridgectl

  Enable DEBUG level:
    ./bridgectl --log-level debug
    ./bridgectl -l debug

  Log to file:
    ./bridgectl --log-file bridge.log
    ./bridgectl -o bridge.log

  JSON format for structured logging:
    ./bridgectl --log-format json -o bridge.json

  Trace the command state machine (why is a command stuck?):
    ./bridgectl --debug state

  Trace mailbox traffic and frame drops:
    ./bridgectl --debug queue

  Trace both, plus worker event delivery:
    ./bridgectl --debug state,queue,events

  Trace fleet reconnection scheduling:
    ./bridgectl --debug reconnect

  Everything, to a file:
    ./bridgectl --debug all -o debug.log

  Production logging (WARN level, JSON to file):
    ./bridgectl -l warn --log-format json -o production.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	if cats := f.categories(); len(cats) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(cats, ",")))
	}

	return strings.Join(parts, " ")
}
