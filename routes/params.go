package routes

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"interpserve/settings"
)

// Form field names.
const (
	fieldVideo     = "video"
	fieldTargetFPS = "target_fps"
	fieldUseFP16   = "use_fp16"
	fieldFlowScale = "flow_scale"
	fieldSceneCut  = "scdet_threshold"
	fieldCRF       = "crf"
	fieldTarget    = "target"
	fieldCallback  = "callback_url"

	// callbackHeaderPrefix fields become headers on the callback request,
	// e.g. callback_header_X-Token=abc.
	callbackHeaderPrefix = "callback_header_"
)

// Control ranges, as the form page declares them.
const (
	minFPS, maxFPS             = 24, 120
	minFlowScale, maxFlowScale = 0.1, 1.0
	minSceneCut, maxSceneCut   = 1, 30
	minCRF, maxCRF             = 0, 51
)

// parseParams reads the five controls from a parsed form. Missing fields take
// their defaults; present ones must be well formed and inside their range.
func parseParams(r *http.Request) (settings.Overrides, error) {
	p := settings.DefaultOverrides()
	var err error

	if p.TargetFPS, err = intField(r, fieldTargetFPS, p.TargetFPS, minFPS, maxFPS); err != nil {
		return p, err
	}
	if p.SceneCutThreshold, err = intField(r, fieldSceneCut, p.SceneCutThreshold, minSceneCut, maxSceneCut); err != nil {
		return p, err
	}
	if p.CRF, err = intField(r, fieldCRF, p.CRF, minCRF, maxCRF); err != nil {
		return p, err
	}

	if v := strings.TrimSpace(r.FormValue(fieldFlowScale)); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			return p, fmt.Errorf("invalid %s: %q is not a number", fieldFlowScale, v)
		}
		if f < minFlowScale-1e-9 || f > maxFlowScale+1e-9 {
			return p, fmt.Errorf("invalid %s: must be between %g and %g", fieldFlowScale, minFlowScale, maxFlowScale)
		}
		tenths := math.Round(f * 10)
		if math.Abs(f*10-tenths) > 1e-6 {
			return p, fmt.Errorf("invalid %s: must be a multiple of 0.1", fieldFlowScale)
		}
		p.FlowScale = tenths / 10
	}

	// The form sends a hidden "false" ahead of the checkbox, so an unchecked
	// box still says so. Clients that omit the field get the default.
	if vals, ok := r.Form[fieldUseFP16]; ok && len(vals) > 0 {
		on := false
		for _, v := range vals {
			b, err := parseBool(v)
			if err != nil {
				return p, fmt.Errorf("invalid %s: %q", fieldUseFP16, v)
			}
			on = on || b
		}
		p.UseFP16 = on
	}
	return p, nil
}

func intField(r *http.Request, name string, def, lo, hi int) (int, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %q is not an integer", name, v)
	}
	if n < lo || n > hi {
		return def, fmt.Errorf("invalid %s: must be between %d and %d", name, lo, hi)
	}
	return n, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}
