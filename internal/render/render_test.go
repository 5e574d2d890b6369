package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpantry/internal/config"
	"foodpantry/internal/dataset"
)

func TestStateOptions(t *testing.T) {
	r := New(time.UTC)
	out, err := r.StateOptions(config.Normalize(config.Config{States: []string{"tx", "ca"}}))
	require.NoError(t, err)
	assert.Equal(t, `<option value="">Choose a state</option><option value="CA">CA</option><option value="TX">TX</option>`, out)

	out, err = r.StateOptions(config.Normalize(config.Config{Labels: map[string]string{"noDatasets": "Nothing yet"}}))
	require.NoError(t, err)
	assert.Equal(t, `<option value="">Nothing yet</option>`, out)
}

func TestListEmptyStates(t *testing.T) {
	r := New(time.UTC)

	out, err := r.List(ListView{StateCode: "ca", Total: 0})
	require.NoError(t, err)
	assert.Contains(t, out, "food-pantry-empty")
	assert.Contains(t, out, "No food pantry records are available for CA.")
	assert.NotContains(t, out, "food-pantry-no-matches")

	out, err = r.List(ListView{StateCode: "ca", Term: " zzz ", Total: 3})
	require.NoError(t, err)
	assert.Contains(t, out, "food-pantry-no-matches")
	assert.Contains(t, out, "CA")
	assert.Contains(t, out, "&#34;zzz&#34;")
}

func TestListRendersItems(t *testing.T) {
	r := New(time.UTC)
	out, err := r.List(ListView{
		StateCode: "nv",
		Total:     5,
		Records: []dataset.Record{
			{ID: "7", Name: "", City: "Reno", State: "NV"},
			{ID: "8", Name: "<script>alert(1)</script>"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `<h3 class="food-pantry-count">2 of 5 shown</h3>`)
	assert.Contains(t, out, `data-id="7"`)
	assert.Contains(t, out, `<span class="food-pantry-item-name">Unnamed Pantry</span> <span class="food-pantry-item-location">Reno, NV</span>`)
	assert.Contains(t, out, `&lt;script&gt;alert(1)&lt;/script&gt;`)
	assert.Contains(t, out, `Location unavailable`)
	assert.NotContains(t, out, "<script>")
}

func TestDetailFullRecord(t *testing.T) {
	r := New(time.UTC)
	out, err := r.Detail(dataset.Record{
		ID:              "7",
		City:            "Reno",
		State:           "NV",
		Zip:             "89501",
		Address:         "1 Main St",
		GeocodedAddress: "1, Main Street, Reno",
		Latitude:        "39.5",
		Longitude:       "-119.8",
		Hours:           "Mon 9-5\nTue 9-5",
		Phone:           "(775) 555-1234",
		Email:           "help@pantry.org",
		Website:         "https://pantry.org",
		ScrapedAt:       "2024-01-15T10:30:00",
	})
	require.NoError(t, err)
	assert.Contains(t, out, `data-action="back"`)
	assert.Contains(t, out, `<h3 class="food-pantry-detail-title">Unnamed Pantry</h3>`)
	assert.Contains(t, out, `<span class="food-pantry-id-badge">7</span>`)
	assert.Contains(t, out, `<dd class="food-pantry-field-coordinates">39.5, -119.8</dd>`)
	assert.Contains(t, out, `<dd class="food-pantry-field-city-state-zip">Reno, NV 89501</dd>`)
	assert.Contains(t, out, `Mon 9-5<br>Tue 9-5`)
	assert.Contains(t, out, `<dd class="food-pantry-field-requirements">None listed</dd>`)
	assert.Contains(t, out, `href="tel:7755551234"`)
	assert.Contains(t, out, `rel="noopener noreferrer"`)
	assert.Contains(t, out, `Scraped At: 1/15/2024, 10:30:00 AM`)

	order := []string{"food-pantry-back", "food-pantry-detail-title", "food-pantry-section-location", "food-pantry-section-operation", "food-pantry-section-contact", "food-pantry-scraped-at"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(out, marker)
		require.Greater(t, idx, last, marker)
		last = idx
	}
}

func TestDetailOmitsEmptyRows(t *testing.T) {
	r := New(time.UTC)
	out, err := r.Detail(dataset.Record{ID: "3", Name: "Hope", Latitude: "abc"})
	require.NoError(t, err)
	assert.Contains(t, out, `<dd class="food-pantry-field-coordinates">N/A</dd>`)
	assert.NotContains(t, out, "food-pantry-field-address")
	assert.NotContains(t, out, "food-pantry-field-city-state-zip")
	assert.NotContains(t, out, "food-pantry-section-contact")
	assert.NotContains(t, out, "N/A</a>")
	assert.Contains(t, out, "Scraped At: Not available")
}

func TestDetailEscapesRecordText(t *testing.T) {
	r := New(time.UTC)
	out, err := r.Detail(dataset.Record{ID: `"><b>`, Name: "<i>x</i>", Description: "<img src=x onerror=alert(1)>"})
	require.NoError(t, err)
	assert.NotContains(t, out, "<img")
	assert.NotContains(t, out, "<i>x</i>")
	assert.Contains(t, out, "&lt;img src=x onerror=alert(1)&gt;")
}

func TestMessages(t *testing.T) {
	r := New(nil)
	out, err := r.Prompt()
	require.NoError(t, err)
	assert.Contains(t, out, "Select a state")

	out, err = r.Loading("tx")
	require.NoError(t, err)
	assert.Contains(t, out, "food-pantry-loading")
	assert.Contains(t, out, "TX")

	out, err = r.Error("dataset not found")
	require.NoError(t, err)
	assert.Contains(t, out, "dataset not found")

	out, err = r.Error("")
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset failed to load.")
}
