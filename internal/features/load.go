package features

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ParsePolicy decides how a field that is not a number affects its row.
type ParsePolicy string

const (
	// PolicyTruncate omits the bad field, so the vector gets shorter.
	PolicyTruncate ParsePolicy = "truncate"
	// PolicyNaN stores NaN in place of the bad field, keeping column alignment.
	PolicyNaN ParsePolicy = "nan"
	// PolicyZero stores 0 in place of the bad field.
	PolicyZero ParsePolicy = "zero"
	// PolicyDrop discards the whole row.
	PolicyDrop ParsePolicy = "drop"
)

// ParsePolicyFrom maps a configuration string to a ParsePolicy.
// The empty string selects PolicyTruncate.
func ParsePolicyFrom(s string) (ParsePolicy, error) {
	switch p := ParsePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyTruncate, nil
	case PolicyTruncate, PolicyNaN, PolicyZero, PolicyDrop:
		return p, nil
	default:
		return "", fmt.Errorf("unknown feature parse policy %q", s)
	}
}

// Options configures Load.
type Options struct {
	Policy ParsePolicy
	Logger *zap.Logger
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string, opts Options) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataLoad, err)
	}
	defer f.Close()

	store, err := Load(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return store, nil
}

// Load reads a comma-separated table where each line is
// city,feature_1,...,feature_n. Every line is data; there is no header.
// A read failure returns ErrDataLoad and no store.
func Load(r io.Reader, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyTruncate
	}

	// Tolerate a UTF-8 byte order mark on the first line.
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	br := bufio.NewReader(decoded)

	s := &Store{data: make(map[string]Vector)}
	line := 0
	for {
		text, err := br.ReadString('\n')
		if text != "" {
			line++
			s.addRow(trimEOL(text), line, policy, logger)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrDataLoad, line+1, err)
		}
	}

	logger.Debug("feature table loaded",
		zap.Int("cities", len(s.data)),
		zap.Int("rows", s.stats.Rows),
		zap.Int("skipped", s.stats.Skipped),
		zap.Int("bad_fields", s.stats.BadFields),
	)
	return s, nil
}

// addRow parses one line of the table into s.
func (s *Store) addRow(text string, line int, policy ParsePolicy, logger *zap.Logger) {
	s.stats.Rows++

	fields := splitRow(text)
	if len(fields) < 2 {
		s.stats.Skipped++
		return
	}

	city := Normalize(fields[0])
	vec, bad := parseFields(fields[1:], policy)
	if bad > 0 {
		s.stats.BadFields += bad
		logger.Warn("invalid feature data for city",
			zap.String("city", city),
			zap.Int("line", line),
			zap.Int("bad_fields", bad),
			zap.String("policy", string(policy)),
		)
		if policy == PolicyDrop {
			s.stats.Dropped++
			return
		}
	}
	if bad == len(fields)-1 {
		// Nothing numeric survived.
		s.stats.Skipped++
		return
	}

	if _, exists := s.data[city]; exists {
		s.stats.Overwritten++
		logger.Debug("duplicate city row replaces earlier one",
			zap.String("city", city), zap.Int("line", line))
	}
	s.data[city] = vec
	s.stats.Admitted++
}

// trimEOL drops the line terminator, "\n" or "\r\n".
func trimEOL(text string) string {
	text = strings.TrimSuffix(text, "\n")
	return strings.TrimSuffix(text, "\r")
}

// splitRow splits on commas. Trailing empty fields are not columns, so
// "Paris,1.0," has two fields.
func splitRow(text string) []string {
	fields := strings.Split(text, ",")
	for len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}

// parseFields converts raw values according to policy and reports how many
// failed to parse.
func parseFields(raw []string, policy ParsePolicy) (Vector, int) {
	vec := make(Vector, 0, len(raw))
	bad := 0
	for _, field := range raw {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		// NaN and Inf spellings parse but are not measurements.
		if err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			vec = append(vec, v)
			continue
		}
		bad++
		switch policy {
		case PolicyNaN:
			vec = append(vec, math.NaN())
		case PolicyZero:
			vec = append(vec, 0)
		}
	}
	return vec, bad
}
