package scout

import (
	"encoding/json"
	"fmt"
	"os"
)

// Tables holds the page-interaction selector and marker sets. Like the
// parser tables, these track live markup and are overridable via config.
type Tables struct {
	// ChallengeMarkers flag an anti-bot interstitial anywhere in the page
	// content.
	ChallengeMarkers []string `json:"challenge_markers"`
	// ResidualMarkers are the subset re-checked after a solve attempt.
	// The widget's container markup stays in the DOM after a successful
	// slide, so only the visible-phrase markers are reliable there.
	ResidualMarkers []string `json:"residual_markers"`
	// SliderSelectors locate the slide-challenge handle.
	SliderSelectors []string `json:"slider_selectors"`
	// FileInputSelectors locate the upload input directly.
	FileInputSelectors []string `json:"file_input_selectors"`
	// CameraSelectors locate the clickable image-search affordance.
	// Entries may use the xpath= prefix for text-based matching.
	CameraSelectors []string `json:"camera_selectors"`
	// SearchInputSelector anchors the search bar, both for readiness
	// detection and as the origin for the coordinate-based camera
	// fallback.
	SearchInputSelector string `json:"search_input_selector"`
	// ResultMarkers are phrases that appear on every rendered result
	// card.
	ResultMarkers []string `json:"result_markers"`
}

// DefaultTables returns the selector sets known to match current markup.
func DefaultTables() Tables {
	return Tables{
		ChallengeMarkers: []string{
			"unusual traffic",
			"slide to verify",
			"slidetounlock",
			"noCaptcha",
		},
		ResidualMarkers: []string{
			"unusual traffic",
			"slide to verify",
		},
		SliderSelectors: []string{
			"#nc_1_n1z",
			".nc_iconfont.btn_slide",
			"#nc_1_n1t",
			".btn_slide",
			".slider-btn",
			"[data-role='slider']",
			".nc-container .btn_slide",
			"span.nc_iconfont",
			"#nocaptcha .nc_scale span",
			".nc_bg_pannel .btn_slide",
		},
		FileInputSelectors: []string{
			"input[type='file']",
			"input[accept*='image']",
			".upload-container input",
			"#image-upload-input",
			".image-search-input",
			"input[data-role='upload-input']",
		},
		CameraSelectors: []string{
			".ui-searchbar-img-search-icon",
			"div[data-role='image-search-btn']",
			".search-visual-icon",
			"i[class*='camera']",
			"span[class*='camera']",
			"button[class*='camera']",
			".camera-icon",
			"[aria-label*='image' i]",
			"div[title*='image' i]",
			"xpath=//div[contains(., \"Image Search\")]",
			"xpath=//span[contains(., \"Image Search\")]",
		},
		SearchInputSelector: "input[name='SearchText']",
		ResultMarkers: []string{
			"Chat now",
			"Add to cart",
			"Min. order",
		},
	}
}

// LoadTables reads a JSON overrides file and merges it over the defaults.
func LoadTables(path string) (Tables, error) {
	t := DefaultTables()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tables file: %w", err)
	}
	var o Tables
	if err := json.Unmarshal(data, &o); err != nil {
		return t, fmt.Errorf("parse tables file: %w", err)
	}
	merge(&t.ChallengeMarkers, o.ChallengeMarkers)
	merge(&t.ResidualMarkers, o.ResidualMarkers)
	merge(&t.SliderSelectors, o.SliderSelectors)
	merge(&t.FileInputSelectors, o.FileInputSelectors)
	merge(&t.CameraSelectors, o.CameraSelectors)
	merge(&t.ResultMarkers, o.ResultMarkers)
	if o.SearchInputSelector != "" {
		t.SearchInputSelector = o.SearchInputSelector
	}
	return t, nil
}

func merge(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
