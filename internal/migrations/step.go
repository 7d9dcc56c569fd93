package migrations

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const stepExt = ".json"

var (
	stepNamePattern   = regexp.MustCompile(`^(\d+)_([a-z]+)_([a-z0-9_]+)$`)
	identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	verbPattern       = regexp.MustCompile(`^[a-z]+$`)

	ErrInvalidStepName = errors.New("invalid migration name")
	ErrDuplicateStep   = errors.New("duplicate migration timestamp")
)

// Step is one forward and inverse schema transformation. Name is the file
// name without extension; the hosting store records it once applied.
type Step struct {
	Name       string
	Timestamp  int64
	Verb       string
	Collection string
	Up         []Op
	Down       []Op
}

type stepFile struct {
	Up   []json.RawMessage `json:"up"`
	Down []json.RawMessage `json:"down"`
}

// ParseStepName splits "<unix-timestamp>_<verb>_<collection>".
func ParseStepName(name string) (int64, string, string, error) {
	m := stepNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, "", "", fmt.Errorf("%w: %q", ErrInvalidStepName, name)
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("%w: %q: %v", ErrInvalidStepName, name, err)
	}
	return ts, m[2], m[3], nil
}

func NewStepName(now time.Time, verb, collection string) (string, error) {
	if !verbPattern.MatchString(verb) {
		return "", fmt.Errorf("%w: verb must be lowercase letters (got %q)", ErrInvalidStepName, verb)
	}
	if !identifierPattern.MatchString(collection) {
		return "", fmt.Errorf("%w: collection must start with a letter and use a-z, 0-9, _ (got %q)", ErrInvalidStepName, collection)
	}
	return fmt.Sprintf("%d_%s_%s", now.Unix(), verb, collection), nil
}

func ParseStep(name string, data []byte) (Step, error) {
	ts, verb, collection, err := ParseStepName(name)
	if err != nil {
		return Step{}, err
	}
	var raw stepFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return Step{}, fmt.Errorf("migration %s: %w", name, err)
	}
	step := Step{Name: name, Timestamp: ts, Verb: verb, Collection: collection}
	if step.Up, err = decodeOps(raw.Up); err != nil {
		return Step{}, fmt.Errorf("migration %s up: %w", name, err)
	}
	if step.Down, err = decodeOps(raw.Down); err != nil {
		return Step{}, fmt.Errorf("migration %s down: %w", name, err)
	}
	return step, nil
}

func EncodeStep(step Step) ([]byte, error) {
	up, err := encodeOps(step.Up)
	if err != nil {
		return nil, err
	}
	down, err := encodeOps(step.Down)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(stepFile{Up: up, Down: down}, "", "  ")
}

// LoadSteps reads every step file in dir and returns them in ascending
// timestamp order.
func LoadSteps(fsys fs.FS, dir string) ([]Step, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != stepExt {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		step, err := ParseStep(strings.TrimSuffix(e.Name(), stepExt), data)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Timestamp < steps[j].Timestamp })
	for i := 1; i < len(steps); i++ {
		if steps[i].Timestamp == steps[i-1].Timestamp {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateStep, steps[i-1].Name, steps[i].Name)
		}
	}
	return steps, nil
}

func decodeOps(raw []json.RawMessage) ([]Op, error) {
	ops := make([]Op, 0, len(raw))
	for i, r := range raw {
		op, err := DecodeOp(r)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func encodeOps(ops []Op) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(ops))
	for _, op := range ops {
		b, err := EncodeOp(op)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
