package pipeline

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/whitaker-io/chewdata/connector"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/step"
	"github.com/whitaker-io/chewdata/updater"
)

var envPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// interpolateEnv expands `{{ VAR }}` against the process environment,
// per spec.md §6, operating on the raw config text before any JSON/YAML
// parsing. This is intentionally distinct from the per-record template
// engine a step's `pattern` field is rendered with later -- that one
// never sees the raw config text, only already-parsed strings.
func interpolateEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.TrimSpace(string(envPattern.FindSubmatch(match)[1]))
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return match
	})
}

// stepConfig is the raw decoded shape of one step object of spec.md §6.
type stepConfig struct {
	Type             string `mapstructure:"type"`
	Alias            string `mapstructure:"alias"`
	Name             string `mapstructure:"name"`
	Description      string `mapstructure:"description"`
	Enable           *bool  `mapstructure:"enable"`
	DataType         string `mapstructure:"data_type"`
	ConcurrencyLimit int    `mapstructure:"concurrency_limit"`
	Threads          int    `mapstructure:"threads"`
	ThreadNumber     int    `mapstructure:"thread_number"`
	BufferSize       int    `mapstructure:"buffer_size"`

	Connector map[string]interface{} `mapstructure:"connector"`
	Document  map[string]interface{} `mapstructure:"document"`

	BatchByteSize   int `mapstructure:"batch_byte_size"`
	BatchRecordSize int `mapstructure:"batch_record_size"`

	Actions []actionConfig       `mapstructure:"actions"`
	Refs    map[string]refConfig `mapstructure:"refs"`
	Wait    string               `mapstructure:"wait"`

	Size int `mapstructure:"size"`

	Rules map[string]ruleConfig `mapstructure:"rules"`
}

type actionConfig struct {
	Field   string `mapstructure:"field"`
	Pattern string `mapstructure:"pattern"`
	Type    string `mapstructure:"type"`
}

type refConfig struct {
	Connector map[string]interface{} `mapstructure:"connector"`
	Document  map[string]interface{} `mapstructure:"document"`
}

type ruleConfig struct {
	Pattern string `mapstructure:"pattern"`
	Message string `mapstructure:"message"`
}

// Build parses a JSON or YAML pipeline config (spec.md §6: a top-level
// sequence of step objects) into an ordered slice of step.Step, sharing
// one step.Upstreams registry across all of them so `steps.<alias>`
// bindings are visible across step boundaries. Decoding is two-staged the
// way the teacher's own Serialization/VertexSerialization types are in
// loader.go: gopkg.in/yaml.v3 (a strict superset of JSON) unmarshals the
// raw text into a generic tree, then github.com/mitchellh/mapstructure
// decodes each step's free-form map into stepConfig.
func Build(data []byte) ([]step.Step, error) {
	data = interpolateEnv(data)

	var raw []map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, record.NewError(record.ErrorKindConfigInvalid, "pipeline: parse config: %v", err)
	}

	upstreams := step.NewUpstreams()
	steps := make([]step.Step, 0, len(raw))
	for i, entry := range raw {
		var cfg stepConfig
		if err := mapstructure.Decode(entry, &cfg); err != nil {
			return nil, record.NewError(record.ErrorKindConfigInvalid, "pipeline: step %d: decode: %v", i, err)
		}
		if cfg.Enable != nil && !*cfg.Enable {
			continue
		}

		s, err := buildStep(cfg, upstreams)
		if err != nil {
			if _, ok := err.(*record.ErrorInfo); ok {
				return nil, err
			}
			return nil, fmt.Errorf("pipeline: step %d: %w", i, err)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// resolveConcurrency applies the Open Question decision of spec.md §9:
// `threads`/`thread_number` are synonyms for `concurrency_limit`; if a
// config sets both a synonym and `concurrency_limit`, reject it as
// ConfigInvalid rather than guess which one wins.
func resolveConcurrency(cfg stepConfig) (int, error) {
	synonym := 0
	if cfg.Threads != 0 {
		synonym = cfg.Threads
	}
	if cfg.ThreadNumber != 0 {
		if synonym != 0 && synonym != cfg.ThreadNumber {
			return 0, record.NewError(record.ErrorKindConfigInvalid, "threads and thread_number disagree")
		}
		synonym = cfg.ThreadNumber
	}
	if synonym != 0 && cfg.ConcurrencyLimit != 0 {
		return 0, record.NewError(record.ErrorKindConfigInvalid, "threads/thread_number and concurrency_limit are synonyms for the same setting; set only one")
	}
	if cfg.ConcurrencyLimit != 0 {
		return cfg.ConcurrencyLimit, nil
	}
	return synonym, nil
}

// dataTypeFor resolves a step's data_type, defaulting per spec.md §4.6:
// `ok` for writers and transformers, `both` otherwise.
func dataTypeFor(cfg stepConfig) step.DataType {
	if cfg.DataType != "" {
		return step.ParseDataType(cfg.DataType)
	}
	switch cfg.Type {
	case "w", "writer", "t", "transformer":
		return step.DataTypeOk
	default:
		return step.DataTypeBoth
	}
}

func buildStep(cfg stepConfig, upstreams *step.Upstreams) (step.Step, error) {
	concurrency, err := resolveConcurrency(cfg)
	if err != nil {
		return nil, err
	}

	alias := cfg.Alias
	if alias == "" {
		alias = cfg.Name
	}

	common := step.Common{
		AliasName:        alias,
		Description:      cfg.Description,
		Enable:           true,
		Type:             dataTypeFor(cfg),
		ConcurrencyLimit: concurrency,
		EdgeBufferSize:   cfg.BufferSize,
		Upstreams:        upstreams,
	}

	switch cfg.Type {
	case "r", "reader":
		return buildReader(cfg, common)
	case "w", "writer":
		return buildWriter(cfg, common)
	case "t", "transformer":
		return buildTransformer(cfg, common)
	case "e", "eraser":
		return buildEraser(cfg, common)
	case "v", "validator":
		return buildValidator(cfg, common)
	case "generator":
		return &step.Generator{Common: common, Size: cfg.Size}, nil
	default:
		return nil, record.NewError(record.ErrorKindConfigInvalid, "unknown step type %q", cfg.Type)
	}
}

func buildReader(cfg stepConfig, common step.Common) (step.Step, error) {
	conn, doc, err := buildConnDoc(cfg.Connector, cfg.Document)
	if err != nil {
		return nil, err
	}
	return &step.Reader{Common: common, Conn: conn, Doc: doc}, nil
}

func buildWriter(cfg stepConfig, common step.Common) (step.Step, error) {
	conn, doc, err := buildConnDoc(cfg.Connector, cfg.Document)
	if err != nil {
		return nil, err
	}
	return &step.Writer{
		Common:          common,
		Conn:            conn,
		Doc:             doc,
		BatchByteSize:   cfg.BatchByteSize,
		BatchRecordSize: cfg.BatchRecordSize,
	}, nil
}

func buildEraser(cfg stepConfig, common step.Common) (step.Step, error) {
	if cfg.Connector == nil {
		return nil, record.NewError(record.ErrorKindConfigInvalid, "eraser: missing connector")
	}
	kind := stringFieldConfig(cfg.Connector, "type")
	if kind == "" {
		return nil, record.NewError(record.ErrorKindConfigInvalid, "eraser: connector missing type")
	}
	conn, err := connector.New(kind, cfg.Connector)
	if err != nil {
		return nil, err
	}
	return &step.Eraser{Common: common, Conn: conn}, nil
}

func buildTransformer(cfg stepConfig, common step.Common) (step.Step, error) {
	actions := make([]updater.Action, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		actionType := updater.ActionType(a.Type)
		if actionType == "" {
			actionType = updater.ActionMerge
		}
		actions = append(actions, updater.Action{
			Field:      a.Field,
			Pattern:    a.Pattern,
			ActionType: actionType,
		})
	}

	refs := map[string]step.Ref{}
	for name, r := range cfg.Refs {
		conn, doc, err := buildConnDoc(r.Connector, r.Document)
		if err != nil {
			return nil, fmt.Errorf("ref %q: %w", name, err)
		}
		refs[name] = step.Ref{Conn: conn, Doc: doc}
	}

	var wait time.Duration
	if cfg.Wait != "" {
		d, err := time.ParseDuration(cfg.Wait)
		if err != nil {
			return nil, record.NewError(record.ErrorKindConfigInvalid, "transformer: wait: %v", err)
		}
		wait = d
	}

	return &step.Transformer{
		Common:  common,
		Updater: updater.New(),
		Actions: actions,
		Refs:    refs,
		Wait:    wait,
	}, nil
}

func buildValidator(cfg stepConfig, common step.Common) (step.Step, error) {
	rules := map[string]step.Rule{}
	for name, r := range cfg.Rules {
		rules[name] = step.Rule{Pattern: r.Pattern, Message: r.Message}
	}
	return &step.Validator{Common: common, Updater: updater.New(), Rules: rules}, nil
}

// buildConnDoc builds the connector/document pair readers, writers, and
// transformer refs all share.
func buildConnDoc(connCfg, docCfg map[string]interface{}) (connector.Connector, document.Document, error) {
	if connCfg == nil {
		return nil, nil, record.NewError(record.ErrorKindConfigInvalid, "missing connector")
	}
	kind := stringFieldConfig(connCfg, "type")
	if kind == "" {
		return nil, nil, record.NewError(record.ErrorKindConfigInvalid, "connector missing type")
	}
	conn, err := connector.New(kind, connCfg)
	if err != nil {
		return nil, nil, err
	}

	doc, err := documentFromConfig(docCfg)
	if err != nil {
		return nil, nil, err
	}
	return conn, doc, nil
}

// documentFromConfig builds a document.Document from the `document`
// config block, defaulting to "json" when the block or its type is
// omitted.
func documentFromConfig(docCfg map[string]interface{}) (document.Document, error) {
	format := "json"
	if t := stringFieldConfig(docCfg, "type"); t != "" {
		format = t
	}

	var opts []document.Option
	if ep := stringFieldConfig(docCfg, "entry_path"); ep != "" {
		opts = append(opts, document.WithEntryPath(ep))
	}
	if pretty, ok := docCfg["is_pretty"].(bool); ok {
		opts = append(opts, document.WithPretty(pretty))
	}
	if format == "csv" {
		delim := runeFieldConfig(docCfg, "delimiter", ',')
		header := true
		if h, ok := docCfg["header"].(bool); ok {
			header = h
		}
		opts = append(opts, document.WithCSV(delim, header))
	}

	doc, err := document.New(format, opts...)
	if err != nil {
		return nil, record.NewError(record.ErrorKindConfigInvalid, "document: %v", err)
	}
	return doc, nil
}

func stringFieldConfig(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func runeFieldConfig(m map[string]interface{}, key string, def rune) rune {
	s := stringFieldConfig(m, key)
	if s == "" {
		return def
	}
	return []rune(s)[0]
}
