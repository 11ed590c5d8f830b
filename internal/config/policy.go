package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultCompletenessPenalty is the per-term completeness penalty.
const DefaultCompletenessPenalty = 0.25

// QualityConfig is the injected gating policy of the quality gate.
type QualityConfig struct {
	ReadyThreshold      float64            `mapstructure:"ready_threshold"`
	ReviewThreshold     float64            `mapstructure:"review_threshold"`
	Weights             map[string]float64 `mapstructure:"weights"`
	RequiredTerms       []string           `mapstructure:"required_terms"`
	// CompletenessPenalty is subtracted from the completeness score per
	// missing required term. Zero selects DefaultCompletenessPenalty.
	CompletenessPenalty float64            `mapstructure:"completeness_penalty"`
	SignatureMarker     string             `mapstructure:"signature_marker"`
	MinSections         int                `mapstructure:"min_sections"`
	MinWords            int                `mapstructure:"min_words"`
	MaxWords            int                `mapstructure:"max_words"`
	MaxSpellingErrs     int                `mapstructure:"max_spelling_errors"`
	ReviewBelow         float64            `mapstructure:"review_below"` // checkpoint review cut-off, inclusive
}

// DefaultQualityConfig returns the reference gating policy.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		ReadyThreshold:  0.85,
		ReviewThreshold: 0.70,
		Weights: map[string]float64{
			"spelling":     1,
			"format":       1,
			"completeness": 1,
			"coherence":    1,
			"compliance":   1,
		},
		RequiredTerms:       []string{"summary", "decisions", "action items", "next steps"},
		CompletenessPenalty: DefaultCompletenessPenalty,
		SignatureMarker:     "Prepared by Recap",
		MinSections:         3,
		MinWords:            500,
		MaxWords:            5000,
		MaxSpellingErrs:     3,
		ReviewBelow:         0.7,
	}
}

func setQualityDefaults(v *viper.Viper) {
	d := DefaultQualityConfig()
	v.SetDefault("quality.ready_threshold", d.ReadyThreshold)
	v.SetDefault("quality.review_threshold", d.ReviewThreshold)
	v.SetDefault("quality.weights", d.Weights)
	v.SetDefault("quality.required_terms", d.RequiredTerms)
	v.SetDefault("quality.completeness_penalty", d.CompletenessPenalty)
	v.SetDefault("quality.signature_marker", d.SignatureMarker)
	v.SetDefault("quality.min_sections", d.MinSections)
	v.SetDefault("quality.min_words", d.MinWords)
	v.SetDefault("quality.max_words", d.MaxWords)
	v.SetDefault("quality.max_spelling_errors", d.MaxSpellingErrs)
	v.SetDefault("quality.review_below", d.ReviewBelow)
}

// Weight returns the weight for a checkpoint kind; unlisted kinds weigh 1.
func (c QualityConfig) Weight(kind string) float64 {
	if w, ok := c.Weights[kind]; ok {
		return w
	}
	return 1
}

// Validate checks that thresholds are ordered and weights usable.
func (c QualityConfig) Validate() error {
	if c.ReadyThreshold <= 0 || c.ReadyThreshold > 1 {
		return fmt.Errorf("quality: ready_threshold must be in (0,1], got %v", c.ReadyThreshold)
	}
	if c.ReviewThreshold < 0 || c.ReviewThreshold >= c.ReadyThreshold {
		return fmt.Errorf("quality: review_threshold must be in [0, ready_threshold), got %v", c.ReviewThreshold)
	}
	var total float64
	for kind, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("quality: weight for %q must not be negative", kind)
		}
		total += w
	}
	if len(c.Weights) > 0 && total == 0 {
		return fmt.Errorf("quality: weights must not all be zero")
	}
	if c.CompletenessPenalty < 0 || c.CompletenessPenalty > 1 {
		return fmt.Errorf("quality: completeness_penalty must be in (0,1], got %v", c.CompletenessPenalty)
	}
	if c.MinWords < 0 || (c.MaxWords > 0 && c.MaxWords < c.MinWords) {
		return fmt.Errorf("quality: word bounds [%d, %d] are invalid", c.MinWords, c.MaxWords)
	}
	return nil
}

// QAConfig is the injected policy of the QA harness.
type QAConfig struct {
	CriticalCodes   []string `mapstructure:"critical_codes"`
	FixturesDir     string   `mapstructure:"fixtures_dir"`
	AudioFormats    []string `mapstructure:"audio_formats"`
	Recipients      []string `mapstructure:"recipients"`
	EmailRecipients []string `mapstructure:"email_recipients"`
	Schedule        string   `mapstructure:"schedule"`
}

// DefaultQAConfig returns the reference QA policy.
func DefaultQAConfig() QAConfig {
	return QAConfig{
		CriticalCodes: []string{"CONF-001", "FILE-002", "MEET-001", "GEN-001", "NOTIF-001"},
		FixturesDir:   "./internal/qa/testdata",
		AudioFormats:  []string{"mp3", "wav", "m4a", "webm"},
		Schedule:      "0 3 * * *",
	}
}

func setQADefaults(v *viper.Viper) {
	d := DefaultQAConfig()
	v.SetDefault("qa.critical_codes", d.CriticalCodes)
	v.SetDefault("qa.fixtures_dir", d.FixturesDir)
	v.SetDefault("qa.audio_formats", d.AudioFormats)
	v.SetDefault("qa.recipients", []string{})
	v.SetDefault("qa.email_recipients", []string{})
	v.SetDefault("qa.schedule", d.Schedule)
}

// IsCritical reports whether a check code is on the critical allow-list.
func (c QAConfig) IsCritical(code string) bool {
	for _, critical := range c.CriticalCodes {
		if strings.EqualFold(critical, code) {
			return true
		}
	}
	return false
}

// SupportsAudioFormat reports whether the transcriber accepts the format.
func (c QAConfig) SupportsAudioFormat(format string) bool {
	format = strings.TrimPrefix(strings.ToLower(format), ".")
	for _, f := range c.AudioFormats {
		if strings.ToLower(f) == format {
			return true
		}
	}
	return false
}

// Validate checks the QA policy.
func (c QAConfig) Validate() error {
	for _, code := range c.CriticalCodes {
		if !strings.Contains(code, "-") {
			return fmt.Errorf("qa: critical code %q is not namespaced", code)
		}
	}
	return nil
}
