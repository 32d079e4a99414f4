package ml

import (
	"errors"
	"fmt"
)

// LabelDecoder maps class indices back to labels.
type LabelDecoder interface {
	Decode(index int) (string, error)
	Len() int
}

// LabelEncoder holds the ordered class list the classifier was trained with.
type LabelEncoder struct {
	Classes []string `json:"classes" yaml:"classes"`
}

func (l *LabelEncoder) validate() error {
	if len(l.Classes) == 0 {
		return errors.New("label encoder has no classes")
	}
	seen := make(map[string]struct{}, len(l.Classes))
	for _, c := range l.Classes {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("duplicate class label %q", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

func (l *LabelEncoder) Decode(index int) (string, error) {
	if index < 0 || index >= len(l.Classes) {
		return "", fmt.Errorf("class index %d out of range [0, %d)", index, len(l.Classes))
	}
	return l.Classes[index], nil
}

func (l *LabelEncoder) Len() int { return len(l.Classes) }
