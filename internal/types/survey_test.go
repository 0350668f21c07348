package types

import "testing"

func TestSurveyValidate(t *testing.T) {
	tests := []struct {
		name    string
		survey  Survey
		wantErr bool
	}{
		{"ok", Survey{ID: "s1", Options: []Option{{Key: "a"}, {Key: "b"}}}, false},
		{"no options", Survey{ID: "s1"}, false},
		{"missing id", Survey{Options: []Option{{Key: "a"}}}, true},
		{"empty key", Survey{ID: "s1", Options: []Option{{Key: ""}}}, true},
		{"duplicate key", Survey{ID: "s1", Options: []Option{{Key: "a"}, {Key: "a"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.survey.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOptionByKeyAndTotal(t *testing.T) {
	s := Survey{ID: "s", Options: []Option{{Key: "a", Label: "Red"}, {Key: "b", Label: "Blue"}}}
	if o, ok := s.OptionByKey("b"); !ok || o.Label != "Blue" {
		t.Errorf("OptionByKey(b) = %+v, %v", o, ok)
	}
	if _, ok := s.OptionByKey("z"); ok {
		t.Error("OptionByKey(z) found a missing option")
	}
	if got := (VoteCounts{"a": 2, "b": 3}).Total(); got != 5 {
		t.Errorf("Total() = %d, want 5", got)
	}
}
