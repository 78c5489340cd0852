package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the structure of config.yaml
type YAMLConfig struct {
	Classifier ClassifierConfig `yaml:"classifier"`
}

// ClassifierConfig holds the intent vocabulary and the model output format
type ClassifierConfig struct {
	UseLLM              bool                `yaml:"use_llm"`
	MinConfidence       float64             `yaml:"min_confidence"`
	TupleDelimiter      string              `yaml:"tuple_delimiter"`
	RecordDelimiter     string              `yaml:"record_delimiter"`
	CompletionDelimiter string              `yaml:"completion_delimiter"`
	Keywords            map[string][]string `yaml:"keywords"`
	Confirmations       []string            `yaml:"confirmations"`
}

// DefaultYAMLConfig is used when config.yaml is absent and fills missing sections
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Classifier: ClassifierConfig{
			UseLLM:              true,
			MinConfidence:       0.5,
			TupleDelimiter:      "<||>",
			RecordDelimiter:     "##",
			CompletionDelimiter: "<|COMPLETE|>",
			Keywords: map[string][]string{
				"appointment": {
					"book", "booking", "schedule", "appointment", "reserve", "reschedule",
					"cancel", "slot", "available", "availability", "can i come", "can we meet",
					"consultation", "meeting", "change time", "another time", "different time",
					"my booking", "remind me", "reminder",
				},
				"tool_request": {
					"send email", "send an email", "email me", "send whatsapp", "whatsapp",
					"send message", "send a message", "message me", "text me", "sms", "notify",
					"contact me", "call me back", "follow up", "get in touch", "forward", "resend",
				},
				"document_qa": {
					"policy", "policies", "refund", "refunds", "return", "returns", "warranty",
					"terms", "guarantee", "procedure", "process", "document", "how do i",
					"how does", "do you accept", "insurance", "requirements", "allowed",
				},
				"faq": {
					"hours", "open", "opening", "close", "closing", "closed", "services",
					"service", "offer", "price", "cost", "how much", "contact", "phone", "email",
					"address", "who are", "about you", "hello", "hi", "hey", "what do you do",
				},
			},
			Confirmations: []string{"yes", "yes please", "confirm", "confirm it", "ok", "okay", "sure", "sounds good", "book it"},
		},
	}
}

// LoadYAMLConfig loads config.yaml over the defaults. Keys present in the file
// replace the default value, keyword lists are replaced per intent, and a
// missing file yields the defaults.
func LoadYAMLConfig(filepath string) (*YAMLConfig, error) {
	config := DefaultYAMLConfig()

	data, err := os.ReadFile(filepath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	return config, nil
}
