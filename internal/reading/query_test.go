package reading

import (
	"errors"
	"testing"
)

// validRecord returns a record with every field inside its range.
func validRecord() QueryRecord {
	return QueryRecord{
		TextDifficulty:            0.6,
		TextType:                  0.8,
		TextLength:                0.7,
		UserEngagement:            0.8,
		UserComprehension:         0.7,
		RecentCommands:            []string{"faster", "repeat", "explain"},
		TextProgress:              0.4,
		CurrentReadingSpeed:       1.0,
		CurrentPauseFrequency:     0.3,
		CurrentHighlightIntensity: 0.5,
		CurrentChunkSize:          0.5,
	}
}

func TestValidate_AcceptsValidRecord(t *testing.T) {
	q := validRecord()
	if err := q.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_InclusiveBounds(t *testing.T) {
	t.Run("speed 0.49 rejected", func(t *testing.T) {
		q := validRecord()
		q.CurrentReadingSpeed = 0.49
		var rangeErr *RangeError
		if err := q.Validate(); !errors.As(err, &rangeErr) {
			t.Fatalf("expected RangeError, got %v", err)
		} else if rangeErr.Field != "current_reading_speed" {
			t.Errorf("field = %q, want current_reading_speed", rangeErr.Field)
		}
	})

	t.Run("speed endpoints accepted", func(t *testing.T) {
		for _, speed := range []float64{0.5, 1.5} {
			q := validRecord()
			q.CurrentReadingSpeed = speed
			if err := q.Validate(); err != nil {
				t.Errorf("speed %g rejected: %v", speed, err)
			}
		}
	})
}

func TestValidate_ErrorNamesFieldAndRange(t *testing.T) {
	q := validRecord()
	q.CurrentPauseFrequency = 0.9

	var rangeErr *RangeError
	err := q.Validate()
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected RangeError, got %v", err)
	}
	if rangeErr.Field != "current_pause_frequency" || rangeErr.Min != 0.1 || rangeErr.Max != 0.8 {
		t.Errorf("unexpected detail: %+v", rangeErr)
	}
	if rangeErr.Value != 0.9 {
		t.Errorf("value = %g, want 0.9", rangeErr.Value)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*QueryRecord)
	}{
		{"text_difficulty", func(q *QueryRecord) { q.TextDifficulty = 1.1 }},
		{"text_type", func(q *QueryRecord) { q.TextType = -0.1 }},
		{"text_length", func(q *QueryRecord) { q.TextLength = 2 }},
		{"user_engagement", func(q *QueryRecord) { q.UserEngagement = -1 }},
		{"user_comprehension", func(q *QueryRecord) { q.UserComprehension = 1.5 }},
		{"text_progress", func(q *QueryRecord) { q.TextProgress = -0.2 }},
		{"current_highlight_intensity", func(q *QueryRecord) { q.CurrentHighlightIntensity = 1.2 }},
		{"current_chunk_size", func(q *QueryRecord) { q.CurrentChunkSize = 0.05 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			q := validRecord()
			tt.mutate(&q)
			var rangeErr *RangeError
			if err := q.Validate(); !errors.As(err, &rangeErr) {
				t.Fatalf("expected RangeError, got %v", err)
			} else if rangeErr.Field != tt.field {
				t.Errorf("field = %q, want %q", rangeErr.Field, tt.field)
			}
		})
	}
}

func TestValidate_OptionalPreferences(t *testing.T) {
	t.Run("absent is fine", func(t *testing.T) {
		q := validRecord()
		if err := q.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("present and valid", func(t *testing.T) {
		q := validRecord()
		v := 1.2
		q.PreferredSpeed = &v
		if err := q.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("present and out of range", func(t *testing.T) {
		q := validRecord()
		v := 0.05
		q.PreferredPauses = &v
		var rangeErr *RangeError
		if err := q.Validate(); !errors.As(err, &rangeErr) {
			t.Fatalf("expected RangeError, got %v", err)
		} else if rangeErr.Field != "preferred_pauses" {
			t.Errorf("field = %q, want preferred_pauses", rangeErr.Field)
		}
	})
}

func TestDefaultRecord_NeutralAndValid(t *testing.T) {
	q := DefaultRecord()
	if err := q.Validate(); err != nil {
		t.Fatalf("default record must validate: %v", err)
	}
	if q.TextType != 0.4 {
		t.Errorf("text type = %g, want general 0.4", q.TextType)
	}
	if q.UserEngagement != 0.5 || q.UserComprehension != 0.5 {
		t.Errorf("signals = %g/%g, want neutral 0.5", q.UserEngagement, q.UserComprehension)
	}
	if q.CurrentReadingSpeed != 1.0 {
		t.Errorf("speed = %g, want default 1.0", q.CurrentReadingSpeed)
	}
	if q.PreferredSpeed != nil {
		t.Error("preferences must stay nil by default")
	}
}

func TestValidate_NegativeActionCount(t *testing.T) {
	q := validRecord()
	q.ActionCount = -1
	var rangeErr *RangeError
	if err := q.Validate(); !errors.As(err, &rangeErr) {
		t.Fatalf("expected RangeError, got %v", err)
	} else if rangeErr.Field != "action_count" {
		t.Errorf("field = %q, want action_count", rangeErr.Field)
	}
}
