// Package export reads and writes registered samples as JSON, CSV or YAML.
package export

import (
	"cmp"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/keyprint/internal/config"
	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/model"
)

// DocumentVersion is written to the metadata of every users document.
const DocumentVersion = "2.0.0"

// Format names an export format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for unsupported format names or extensions.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat resolves a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Document is the users document: every user with all of their samples.
type Document struct {
	Users    map[string]User `json:"users" yaml:"users"`
	Metadata Metadata        `json:"metadata" yaml:"metadata"`
}

// Metadata describes a document.
type Metadata struct {
	Version    string    `json:"version" yaml:"version"`
	ExportedAt time.Time `json:"exported_at,omitzero" yaml:"exported_at,omitempty"`
}

// User is one registered user in a document.
type User struct {
	DisplayName  string    `json:"display_name" yaml:"display_name"`
	RegisteredAt time.Time `json:"registered_at,omitzero" yaml:"registered_at,omitempty"`
	Samples      []Sample  `json:"samples" yaml:"samples"`
}

// Sample is one stored feature sample in a document.
type Sample struct {
	ID        string          `json:"id,omitempty" yaml:"id,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	Source    string          `json:"source,omitempty" yaml:"source,omitempty"`
	Features  features.Record `json:"features" yaml:"features"`
}

// Build assembles a document from stored samples. Users without samples
// are kept when listed in users.
func Build(users []model.UserSummary, samples []model.Sample, now time.Time) Document {
	doc := Document{
		Users:    map[string]User{},
		Metadata: Metadata{Version: DocumentVersion, ExportedAt: now.UTC()},
	}
	for _, u := range users {
		doc.Users[u.UserID] = User{DisplayName: u.DisplayName, RegisteredAt: u.CreatedAt.UTC(), Samples: []Sample{}}
	}
	for _, s := range samples {
		u, ok := doc.Users[s.UserID]
		if !ok {
			u = User{DisplayName: s.DisplayName, RegisteredAt: s.CreatedAt.UTC(), Samples: []Sample{}}
		}
		u.Samples = append(u.Samples, Sample{
			ID:        s.ID,
			CreatedAt: s.CreatedAt.UTC(),
			Source:    s.Source,
			Features:  s.Features.Record(),
		})
		doc.Users[s.UserID] = u
	}
	return doc
}

// Samples flattens a document back into samples, ordered by registration
// time and then user id.
func (d Document) Samples() ([]model.Sample, error) {
	ids := make([]string, 0, len(d.Users))
	for id := range d.Users {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := d.Users[a].RegisteredAt.Compare(d.Users[b].RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	var out []model.Sample
	for _, id := range ids {
		u := d.Users[id]
		if err := config.ValidateUser(model.NewUser{UserID: id, DisplayName: u.DisplayName}); err != nil {
			return nil, fmt.Errorf("user %q: %w", id, err)
		}
		for i, s := range u.Samples {
			if s.ID != "" {
				if _, err := uuid.Parse(s.ID); err != nil {
					return nil, fmt.Errorf("user %q sample %d: invalid id: %w", id, i, err)
				}
			}
			fv, err := features.FromRecord(s.Features)
			if err != nil {
				return nil, fmt.Errorf("user %q sample %d: %w", id, i, err)
			}
			out = append(out, model.Sample{
				ID:          s.ID,
				UserID:      id,
				DisplayName: u.DisplayName,
				CreatedAt:   s.CreatedAt,
				Source:      s.Source,
				Features:    fv,
			})
		}
	}
	return out, nil
}

// Write encodes samples in the given format.
func Write(w io.Writer, format Format, users []model.UserSummary, samples []model.Sample, now time.Time) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Build(users, samples, now))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(Build(users, samples, now)); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return writeCSV(w, samples)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Read decodes samples in the given format.
func Read(r io.Reader, format Format) ([]model.Sample, error) {
	switch format {
	case FormatJSON:
		var doc Document
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
		return doc.Samples()
	case FormatYAML:
		var doc Document
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
		return doc.Samples()
	case FormatCSV:
		return readCSV(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// CSV rows carry the user id in "name" followed by every feature in vector
// order. Unobserved features are written as 0.
func writeCSV(w io.Writer, samples []model.Sample) error {
	cw := csv.NewWriter(w)
	names := features.Names()
	if err := cw.Write(append([]string{"name"}, names...)); err != nil {
		return err
	}
	row := make([]string, len(names)+1)
	for _, s := range samples {
		vec := s.Features.Vector()
		row[0] = s.UserID
		for i, v := range vec {
			row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readCSV(r io.Reader) ([]model.Sample, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) < 2 || header[0] != "name" {
		return nil, fmt.Errorf("csv header must start with name and at least one feature")
	}
	for _, name := range header[1:] {
		if _, ok := features.LabelByName(name); !ok {
			return nil, fmt.Errorf("unknown csv column %q", name)
		}
	}

	var out []model.Sample
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if !config.ValidUserID(row[0]) {
			return nil, fmt.Errorf("line %d: invalid user id %q", line, row[0])
		}
		rec := features.Record{}
		for i, cell := range row[1:] {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, header[i+1], err)
			}
			rec[header[i+1]] = v
		}
		fv, err := features.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, model.Sample{UserID: row[0], Source: "import", Features: fv})
	}
	return out, nil
}
