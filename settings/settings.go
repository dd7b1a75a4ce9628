// Package settings builds the INI file SVFI reads its job parameters from.
//
// SVFI parses the file with its own config reader, so section and key names
// must match exactly, and every value is written as a plain string.
package settings

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"
)

// Section is the only section SVFI looks at.
const Section = "General"

// Keys the web form overrides.
const (
	KeyTargetFPS = "target_fps"
	KeyUseFP16   = "use_rife_fp16"
	KeyFlowScale = "rife_scale"
	KeySceneCut  = "scdet_threshold"
	KeyCRF       = "render_encoder_crf"
	KeyOutputDir = "output_dir"
)

// ini keeps its output format in package globals, so this applies to every
// ini file the binary writes. settings is the only writer.
func init() {
	// "key = value", no column alignment.
	ini.PrettyFormat = false
	ini.PrettyEqual = true
}

type entry struct {
	key, value string
}

// defaults lists every key SVFI expects, in file order. output_dir is filled in by New.
var defaults = []entry{
	{KeyOutputDir, ""},
	{"output_ext", ".mp4"},
	{"is_save_audio", "true"},
	{"use_scdet_fixed", "false"},
	{"is_no_scdet", "false"},
	{"is_scdet_mix", "false"},
	{KeySceneCut, "12"},
	{"use_sr", "false"},
	{"use_rife_multi_cards", "false"},
	{"use_rife_auto_scale", "false"},
	{KeyUseFP16, "true"},
	{"use_rife_trt", "false"},
	{"use_rife_tta", "false"},
	{"use_rife_ensemble", "false"},
	{"use_rife_backward_flow", "false"},
	{"use_rife_uhd", "false"},
	{"use_rife_interp", "false"},
	{"use_rife_sc_dropout", "false"},
	{"use_rife_algo", "official_3.x"},
	{KeyFlowScale, "0.5"},
	{"rife_device_id", "0"},
	{KeyTargetFPS, "60"},
	{"render_encoder", "CPU"},
	{"render_encoder_preset", "fast"},
	{"render_encoder_tune", "film"},
	{"render_encoder_profile", "high"},
	{"render_encoder_level", "4.1"},
	{KeyCRF, "16"},
	{"render_encoder_codec", "H264,8bit"},
	{"render_encoder_thread", "0"},
	{"render_encoder_custom_params", ""},
	{"render_chunk_size", "100"},
	{"render_buffer_size", "0"},
	{"render_hdr_mode", "Auto"},
	{"render_hdr_custom_params", ""},
	{"render_fast_decode", "false"},
	{"render_hwaccel", "false"},
	{"render_deinterlace", "false"},
	{"render_denoise", "false"},
	{"render_default_encoder", "true"},
	{"render_audio_to_aac", "false"},
	{"render_keep_chunk", "false"},
	{"render_high_precision", "false"},
}

// Default returns the built-in value for key and whether the key is known.
func Default(key string) (string, bool) {
	for _, e := range defaults {
		if e.key == key {
			return e.value, true
		}
	}
	return "", false
}

// Overrides are the per-job values taken from the form.
type Overrides struct {
	TargetFPS         int     `json:"target_fps"`
	UseFP16           bool    `json:"use_fp16"`
	FlowScale         float64 `json:"flow_scale"`
	SceneCutThreshold int     `json:"scdet_threshold"`
	CRF               int     `json:"crf"`
}

// DefaultOverrides matches the untouched form.
func DefaultOverrides() Overrides {
	return Overrides{TargetFPS: 60, UseFP16: true, FlowScale: 0.5, SceneCutThreshold: 12, CRF: 16}
}

// Settings is an ordered key/value set for the General section.
type Settings struct {
	entries []entry
	index   map[string]int
}

// New returns the defaults with output_dir pointing at outputDir.
func New(outputDir string) *Settings {
	s := &Settings{
		entries: make([]entry, len(defaults)),
		index:   make(map[string]int, len(defaults)),
	}
	copy(s.entries, defaults)
	for i, e := range s.entries {
		s.index[e.key] = i
	}
	s.Set(KeyOutputDir, outputDir)
	return s
}

// Get returns the value for key.
func (s *Settings) Get(key string) (string, bool) {
	i, ok := s.index[key]
	if !ok {
		return "", false
	}
	return s.entries[i].value, true
}

// Set replaces the value of key, appending it if the key is new.
func (s *Settings) Set(key, value string) {
	if i, ok := s.index[key]; ok {
		s.entries[i].value = value
		return
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, entry{key, value})
}

// Keys returns the keys in file order.
func (s *Settings) Keys() []string {
	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.key
	}
	return keys
}

// Map returns a copy of the settings as a plain map.
func (s *Settings) Map() map[string]string {
	m := make(map[string]string, len(s.entries))
	for _, e := range s.entries {
		m[e.key] = e.value
	}
	return m
}

// Apply writes the five form values into their keys. Ranges are not checked here.
func (s *Settings) Apply(o Overrides) *Settings {
	s.Set(KeyTargetFPS, strconv.Itoa(o.TargetFPS))
	s.Set(KeyUseFP16, strconv.FormatBool(o.UseFP16))
	s.Set(KeyFlowScale, strconv.FormatFloat(o.FlowScale, 'f', -1, 64))
	s.Set(KeySceneCut, strconv.Itoa(o.SceneCutThreshold))
	s.Set(KeyCRF, strconv.Itoa(o.CRF))
	return s
}

func (s *Settings) file() (*ini.File, error) {
	f := ini.Empty()
	sec, err := f.NewSection(Section)
	if err != nil {
		return nil, err
	}
	for _, e := range s.entries {
		if _, err := sec.NewKey(e.key, e.value); err != nil {
			return nil, fmt.Errorf("add key %s: %w", e.key, err)
		}
	}
	return f, nil
}

// WriteFile serializes the settings to path, replacing any existing file.
func (s *Settings) WriteFile(path string) error {
	f, err := s.file()
	if err != nil {
		return fmt.Errorf("build settings: %w", err)
	}
	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

// Load reads a settings file written by WriteFile.
func Load(path string) (*Settings, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	sec, err := f.GetSection(Section)
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	s := &Settings{index: make(map[string]int)}
	for _, k := range sec.Keys() {
		s.Set(k.Name(), k.Value())
	}
	return s, nil
}
