package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/model"
)

func fixture() ([]model.UserSummary, []model.Sample) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fv := func(e, th float64) features.FeatureVector {
		v := features.NewFeatureVector()
		v.Dwell[features.KeyE] = e
		v.Digraph[features.DigraphTH] = th
		v.TypingRate = 6
		return v
	}
	users := []model.UserSummary{
		{UserID: "zoe", DisplayName: "Zoe", CreatedAt: t0, Samples: 2},
		{UserID: "adam", DisplayName: "Adam", CreatedAt: t0.Add(time.Hour), Samples: 1},
	}
	samples := []model.Sample{
		{ID: uuid.NewString(), UserID: "zoe", DisplayName: "Zoe", CreatedAt: t0, Source: "tui", Features: fv(0.08, 0.2)},
		{ID: uuid.NewString(), UserID: "zoe", DisplayName: "Zoe", CreatedAt: t0.Add(time.Minute), Source: "tui", Features: fv(0.09, 0.21)},
		{ID: uuid.NewString(), UserID: "adam", DisplayName: "Adam", CreatedAt: t0.Add(time.Hour), Source: "evdev", Features: fv(0.12, 0.3)},
	}
	return users, samples
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	f, err = FormatFromPath("/tmp/users.json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = FormatFromPath("users")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestJSONDocumentShape(t *testing.T) {
	users, samples := fixture()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, users, samples, time.Now()))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	meta := raw["metadata"].(map[string]any)
	assert.Equal(t, "2.0.0", meta["version"])
	zoe := raw["users"].(map[string]any)["zoe"].(map[string]any)
	assert.Equal(t, "Zoe", zoe["display_name"])
	first := zoe["samples"].([]any)[0].(map[string]any)
	assert.Equal(t, 0.08, first["features"].(map[string]any)["dwell_e"])
}

func TestWriteReadKeepsSamples(t *testing.T) {
	users, samples := fixture()
	for _, format := range []Format{FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, format, users, samples, time.Now()), format)
		got, err := Read(&buf, format)
		require.NoError(t, err, format)
		require.Len(t, got, 3, format)
		// Registration order survives the map-keyed document.
		assert.Equal(t, []string{"zoe", "zoe", "adam"}, []string{got[0].UserID, got[1].UserID, got[2].UserID}, format)
		assert.Equal(t, samples[1].ID, got[1].ID, format)
		assert.Equal(t, "Adam", got[2].DisplayName, format)
		assert.InDelta(t, 0.3, got[2].Features.Digraph[features.DigraphTH], 1e-12, format)
		assert.True(t, samples[0].CreatedAt.Equal(got[0].CreatedAt), format)
	}
}

func TestCSVColumns(t *testing.T) {
	users, samples := fixture()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, users, samples, time.Now()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	header := strings.Split(lines[0], ",")
	assert.Len(t, header, 29)
	assert.Equal(t, "name", header[0])
	assert.Equal(t, "dwell_e", header[1])
	assert.Equal(t, "typing_rate", header[28])
	assert.True(t, strings.HasPrefix(lines[1], "zoe,0.08,"))

	got, err := Read(strings.NewReader(buf.String()), FormatCSV)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "adam", got[2].UserID)
	assert.Equal(t, 3, got[2].Features.Observed())
}

func TestReadRejectsBadInput(t *testing.T) {
	cases := map[string]struct {
		format Format
		body   string
	}{
		"csv bad header":     {FormatCSV, "user,dwell_e\nalice,0.1\n"},
		"csv unknown col":    {FormatCSV, "name,dwell_q\nalice,0.1\n"},
		"csv bad user":       {FormatCSV, "name,dwell_e\n1x,0.1\n"},
		"csv negative":       {FormatCSV, "name,dwell_e\nalice,-0.1\n"},
		"json unknown key":   {FormatJSON, `{"users":{},"metadata":{"version":"2.0.0"},"extra":1}`},
		"json bad feature":   {FormatJSON, `{"users":{"alice":{"display_name":"A","samples":[{"features":{"dwell_z":0.1}}]}},"metadata":{"version":"2.0.0"}}`},
		"json bad sample id": {FormatJSON, `{"users":{"alice":{"display_name":"A","samples":[{"id":"nope","features":{}}]}},"metadata":{"version":"2.0.0"}}`},
		"yaml bad user":      {FormatYAML, "users:\n  \"a b\":\n    display_name: x\n    samples: []\nmetadata:\n  version: 2.0.0\n"},
	}
	for name, tc := range cases {
		_, err := Read(strings.NewReader(tc.body), tc.format)
		assert.Error(t, err, name)
	}
}
